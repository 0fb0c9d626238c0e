// webkvm - browser-style client for an FPGA KVM capture board.
// It forwards pointer input to the board and shows its four video channels
// in a local viewer page.
package main

func main() {
	Execute()
}
