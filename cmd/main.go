// Command rollcall runs the face-recognition attendance service and its
// maintenance tasks.
package main

func main() {
	Execute()
}
