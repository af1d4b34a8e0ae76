// Package textutil sanitizes player names, profile aliases, and matchup labels
// into path segments that are valid on both POSIX and Windows filesystems.
package textutil
