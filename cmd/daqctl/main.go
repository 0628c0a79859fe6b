// Command daqctl talks to a data-acquisition board over its serial port and
// inspects the flash images written by daqsim.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
