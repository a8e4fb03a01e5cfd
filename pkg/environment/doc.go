// Package environment names the deployment stage (development, staging,
// production) so the logger and the daemon can pick their defaults from a
// single APP_ENV value.
package environment
