// Package process delivers notifications by running allow-listed local
// commands, one per channel. It lets deployments hand email, SMS or push
// delivery to an existing script without linking a provider SDK.
package process
