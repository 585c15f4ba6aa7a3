// cmd/library/main.go
package main

func main() {
	Execute()
}
