package ledger

// Component is an instantiated blueprint. Its address doubles as the virtual
// badge that RequireComponent rules check for.
type Component struct {
	address   ComponentAddress
	blueprint string
}

// Address returns the component address.
func (c *Component) Address() ComponentAddress { return c.address }

// Blueprint names the code the component was instantiated from.
func (c *Component) Blueprint() string { return c.blueprint }
