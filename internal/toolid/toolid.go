// Package toolid encodes and decodes the three-part identifiers that address
// a single downstream tool: toolbox, server and original tool name.
//
// Identifiers are joined with Delimiter between fields. Toolbox and server
// names may not contain the delimiter (the config loader rejects them); tool
// names may, because decoding caps the split at three fields and keeps the
// remainder verbatim as the name.
package toolid

import (
	"errors"
	"fmt"
	"strings"
)

// Delimiter separates the fields of an encoded identifier.
const Delimiter = "__"

// ErrInvalidIdentifier is returned when a string is not a well formed
// toolbox__server__name identifier.
var ErrInvalidIdentifier = errors.New("invalid tool identifier")

// ToolIdentifier addresses one tool on one server inside one toolbox.
type ToolIdentifier struct {
	Toolbox string `json:"toolbox" jsonschema:"Toolbox name as passed to open_toolbox"`
	Server  string `json:"server" jsonschema:"Server name inside the toolbox"`
	Name    string `json:"name" jsonschema:"Original tool name on that server"`
}

// New builds an identifier from its parts.
func New(toolbox, server, name string) ToolIdentifier {
	return ToolIdentifier{Toolbox: toolbox, Server: server, Name: name}
}

// Encode joins the three fields with the delimiter.
func Encode(toolbox, server, name string) string {
	return toolbox + Delimiter + server + Delimiter + name
}

// Decode splits s into at most three fields. Anything other than three
// non-empty fields is an error.
func Decode(s string) (ToolIdentifier, error) {
	parts := strings.SplitN(s, Delimiter, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return ToolIdentifier{}, fmt.Errorf("%w: %q (want toolbox%sserver%sname)", ErrInvalidIdentifier, s, Delimiter, Delimiter)
	}
	return New(parts[0], parts[1], parts[2]), nil
}

// String returns the encoded form.
func (id ToolIdentifier) String() string {
	return Encode(id.Toolbox, id.Server, id.Name)
}

// Validate reports which field, if any, is empty.
func (id ToolIdentifier) Validate() error {
	switch {
	case id.Toolbox == "":
		return fmt.Errorf("%w: toolbox is required", ErrInvalidIdentifier)
	case id.Server == "":
		return fmt.Errorf("%w: server is required", ErrInvalidIdentifier)
	case id.Name == "":
		return fmt.Errorf("%w: tool name is required", ErrInvalidIdentifier)
	}
	return nil
}
