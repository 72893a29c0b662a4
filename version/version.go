package version

// Version represents the Major.Minor.Patch version tag
// from GIT, supplied by the Makefile - else 'dev' as a
// default
var Version string = "dev"

// UserAgent sent on every Nimbus request
func UserAgent() string {
	return "actron-nimbus-go/" + Version
}
