// Package identity persists the opaque worker identity a client claims leads
// under. The identity is generated once per installation and never registered
// anywhere.
package identity
