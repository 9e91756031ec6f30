package version

// Version is the application version.
const Version = "0.1.0"
