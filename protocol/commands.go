package protocol

import "fmt"

// Domain command builders. Each returns the single-line command string an
// endpoint expects on the wire.

// CmdAddress creates a new contact address on the endpoint.
func CmdAddress() string { return "/address" }

// CmdShowAddress returns the endpoint's existing contact address.
func CmdShowAddress() string { return "/show_address" }

// CmdConnect connects to another endpoint via its invitation link.
func CmdConnect(link string) string { return "/connect " + link }

// CmdContacts lists the endpoint's contacts.
func CmdContacts() string { return "/contacts" }

// CmdAcceptContact accepts a pending contact request.
func CmdAcceptContact(name string) string { return "/accept " + name }

// CmdDeleteContact removes a contact.
func CmdDeleteContact(name string) string { return "/delete " + name }

// CmdSendMessage sends text to a contact.
func CmdSendMessage(contact, text string) string {
	return fmt.Sprintf("@%s %s", contact, text)
}
