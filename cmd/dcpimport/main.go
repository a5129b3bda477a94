// Command dcpimport runs the school list import without the desktop shell.
package main

func main() {
	Execute()
}
