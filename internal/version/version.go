// Package version contains AdvFilter version information.
package version

// These can be set by the linker.  Unfortunately, we cannot set constants
// during linking, and Go doesn't have a concept of immutable variables, so they
// are only exported through getters.
var (
	branch     string
	committime string
	revision   string
	version    string

	name = "AdvFilter"
)

// Branch returns the compiled-in value of the Git branch.
func Branch() (b string) {
	return branch
}

// CommitTime returns the compiled-in value of the commit time as a string.
func CommitTime() (t string) {
	return committime
}

// Revision returns the compiled-in value of the Git revision.
func Revision() (r string) {
	return revision
}

// Version returns the compiled-in value of the AdvFilter version as a string.
func Version() (v string) {
	return version
}

// Name returns the name of the service.
func Name() (n string) {
	return name
}

// UserAgent returns the name and the version of the service as a User-Agent
// string.
func UserAgent() (ua string) {
	v := version
	if v == "" {
		v = "dev"
	}

	return name + "/" + v
}
