// Command snippet runs the playgrounds of a documentation page from the
// terminal, using the same runtimes as the server.
//
//	snippet blocks content/docs/basics/lists.mdx
//	snippet run content/docs/basics/lists.mdx --block 0 --lang both
package main

func main() {
	Execute()
}
