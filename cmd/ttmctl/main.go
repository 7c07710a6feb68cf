// Command ttmctl drives a TTM device on an in-memory or Linux host and reports its page accounting.
package main

func main() {
	Execute()
}
