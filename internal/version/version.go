package version

// Version is the application version, bumped on release.
const Version = "0.3.0"
