// lgpo edits Windows local Group Policy from the command line: built-in
// security policy (account policy, audit, user rights, security options)
// and Administrative Template policies backed by ADMX definitions.
package main

func main() {
	Execute()
}
