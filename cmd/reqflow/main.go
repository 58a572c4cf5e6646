// Command reqflow derives user stories and their conflicts from a set of
// personas and a system documentation bundle.
package main

func main() {
	Execute()
}
