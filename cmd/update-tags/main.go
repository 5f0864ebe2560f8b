package main

import (
	"github.com/harvard-lil/docker-compose-update-action/internal/apps/updatetags/cmds"
	"github.com/harvard-lil/docker-compose-update-action/internal/runtime"
)

func main() {
	var execErr error

	rt := runtime.New()
	defer rt.Finalize("update-tags", "Run 'update-tags --help' for usage.", &execErr)

	execErr = cmds.Execute(rt)
}
