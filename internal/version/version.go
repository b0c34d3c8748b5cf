package version

// Version is the current release of the opportunity finder
var Version = "0.4.0"
