//go:build !unix

package mover

func crossDevice(err error) bool {
	return err != nil
}
