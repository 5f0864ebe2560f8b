package version

// Version is stamped at build time:
//
//	go build -ldflags "-X github.com/harvard-lil/docker-compose-update-action/internal/version.Version=v1.2.0" ./cmd/update-tags
var Version = "local"

// Get returns the version this binary was built as, "local" for untagged builds.
func Get() string {
	if Version == "" {
		return "local"
	}
	return Version
}
