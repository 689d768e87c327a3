// Package mo provides per-class access to managed objects on the fabric
// controller.
//
// An Access addresses objects of one class by the ordered values that fill
// the slots of its distinguished name. Create makes sure every creatable
// ancestor exists first:
//
//	c := mo.NewClient(session, tel)
//	err := c.MO("fvRsBd").Create(ctx, mo.Attributes{"tnFvBDName": "net"}, "acme", "app", "net")
//
// Objects are deleted by posting status=deleted, which the controller
// accepts whether or not the object exists.
package mo
