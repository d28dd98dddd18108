//go:build !linux

package counters

func hasPerfmon() bool {
	return false
}
