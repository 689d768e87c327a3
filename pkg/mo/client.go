package mo

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/noironetworks/neutron/pkg/schema"
	"github.com/noironetworks/neutron/pkg/telemetry"
	"github.com/noironetworks/neutron/pkg/transports/apic"
)

// Lifecycle values of the status attribute.
const (
	StatusCreated = "created"
	StatusDeleted = "deleted"
	statusKey     = "status"
)

// Attributes are the string attributes of a managed object.
type Attributes = apic.Attributes

// Requester issues requests relative to the controller API base.
// *apic.Session implements it.
type Requester interface {
	Get(ctx context.Context, path string) ([]apic.Envelope, error)
	Post(ctx context.Context, path string, body []byte) ([]apic.Envelope, error)
}

// Client hands out per-class accessors sharing one Requester.
type Client struct {
	req      Requester
	registry *schema.Registry
	metrics  *telemetry.Metrics

	mu     sync.Mutex
	access map[string]*Access
}

// NewClient creates a client over req using the default class registry.
func NewClient(req Requester, tel *telemetry.Telemetry) *Client {
	return NewClientWithRegistry(req, schema.Default, tel)
}

// NewClientWithRegistry creates a client over req and registry.
func NewClientWithRegistry(req Requester, registry *schema.Registry, tel *telemetry.Telemetry) *Client {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Client{
		req:      req,
		registry: registry,
		metrics:  tel.Metrics,
		access:   make(map[string]*Access),
	}
}

// MO returns the accessor for class. An unknown class yields an accessor
// whose every operation fails with schema.ErrUnknownClass.
func (c *Client) MO(class string) *Access {
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.access[class]; ok {
		return a
	}
	resolved, err := c.registry.Resolve(class)
	a := &Access{client: c, class: resolved, err: err}
	c.access[class] = a
	return a
}

// Access performs CRUD operations on one managed object class.
type Access struct {
	client *Client
	class  *schema.Class
	err    error
}

// SubtreeOptions narrows a subtree query.
type SubtreeOptions struct {
	// Class restricts the returned descendants to one class.
	Class string
}

// Class returns the resolved class.
func (a *Access) Class() (*schema.Class, error) {
	return a.class, a.err
}

// FullName returns the distinguished name for values.
func (a *Access) FullName(values ...string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.class.FullName(values...)
}

// Create writes the object after making sure every creatable ancestor
// exists, outermost first. A creatable class gets status=created unless
// attrs sets a status.
func (a *Access) Create(ctx context.Context, attrs Attributes, values ...string) error {
	dn, err := a.FullName(values...)
	if err != nil {
		return err
	}
	if err := a.createContainers(ctx, values); err != nil {
		return err
	}

	body := make(Attributes, len(attrs)+1)
	for k, v := range attrs {
		body[k] = v
	}
	if _, ok := body[statusKey]; a.class.CanCreate && !ok {
		body[statusKey] = StatusCreated
	}
	if err := a.client.post(ctx, a.class, dn, body); err != nil {
		return err
	}
	a.client.metrics.RecordObjectCreated(a.class.WireName)
	return nil
}

func (a *Access) createContainers(ctx context.Context, values []string) error {
	var chain []*schema.Class
	for p := a.class.Container; p != nil && p.CanCreate; p = p.Container {
		chain = append(chain, p)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		parent := chain[i]
		dn, err := parent.FullName(values[:parent.ParamCount]...)
		if err != nil {
			return err
		}
		if err := a.client.post(ctx, parent, dn, Attributes{}); err != nil {
			return fmt.Errorf("create container %s: %w", dn, err)
		}
	}
	return nil
}

// Get reads the object's attributes. The boolean is false when the object
// does not exist.
func (a *Access) Get(ctx context.Context, values ...string) (Attributes, bool, error) {
	dn, err := a.FullName(values...)
	if err != nil {
		return nil, false, err
	}
	imdata, err := a.client.req.Get(ctx, moPath(dn)+"?query-target=self")
	if err != nil {
		return nil, false, err
	}
	if len(imdata) == 0 {
		return nil, false, nil
	}
	attrs, ok := imdata[0].AttributesOf(a.class.WireName)
	return attrs, ok, nil
}

// GetSubtree reads the children of the object with their full subtrees.
func (a *Access) GetSubtree(ctx context.Context, opts SubtreeOptions, values ...string) ([]apic.Envelope, error) {
	dn, err := a.FullName(values...)
	if err != nil {
		return nil, err
	}
	q := "?query-target=children&"
	if opts.Class != "" {
		q += "target-subtree-class=" + url.QueryEscape(opts.Class) + "&"
	}
	q += "rsp-subtree=full"
	return a.client.req.Get(ctx, moPath(dn)+q)
}

// ListAll returns every object of the class whose attributes equal filter.
func (a *Access) ListAll(ctx context.Context, filter map[string]string) ([]Attributes, error) {
	if a.err != nil {
		return nil, a.err
	}
	path := "/class/" + a.class.WireName + ".json"
	if expr := FilterExpression(a.class.WireName, filter); expr != "" {
		path += "?query-target-filter=" + url.QueryEscape(expr)
	}
	imdata, err := a.client.req.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make([]Attributes, 0, len(imdata))
	for _, env := range imdata {
		if attrs, ok := env.AttributesOf(a.class.WireName); ok {
			out = append(out, attrs)
		}
	}
	return out, nil
}

// ListNames returns the name attribute of every object ListAll returns.
func (a *Access) ListNames(ctx context.Context, filter map[string]string) ([]string, error) {
	objs, err := a.ListAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, o["name"])
	}
	return names, nil
}

// Update writes attrs to the object without touching its ancestors.
func (a *Access) Update(ctx context.Context, attrs Attributes, values ...string) error {
	dn, err := a.FullName(values...)
	if err != nil {
		return err
	}
	return a.client.post(ctx, a.class, dn, attrs)
}

// Delete marks the object deleted. Deleting an absent object succeeds.
func (a *Access) Delete(ctx context.Context, values ...string) error {
	dn, err := a.FullName(values...)
	if err != nil {
		return err
	}
	if err := a.client.post(ctx, a.class, dn, Attributes{statusKey: StatusDeleted}); err != nil {
		return err
	}
	a.client.metrics.RecordObjectDeleted(a.class.WireName)
	return nil
}

func (c *Client) post(ctx context.Context, class *schema.Class, dn string, attrs Attributes) error {
	body, err := apic.NewEnvelope(class.WireName, attrs).Marshal()
	if err != nil {
		return fmt.Errorf("encode %s: %w", dn, err)
	}
	_, err = c.req.Post(ctx, moPath(dn), body)
	return err
}

// FilterExpression builds the and(eq(...)) class query filter. Keys are
// sorted so the expression is stable.
func FilterExpression(class string, filter map[string]string) string {
	if len(filter) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	terms := make([]string, len(keys))
	for i, k := range keys {
		terms[i] = fmt.Sprintf("eq(%s.%s,%q)", class, k, filter[k])
	}
	return "and(" + strings.Join(terms, ",") + ")"
}

func moPath(dn string) string {
	return "/mo/" + dn + ".json"
}
