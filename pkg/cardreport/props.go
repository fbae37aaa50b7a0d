package cardreport

import "context"

// XML namespaces of the properties the engine knows about.
const (
	NSDAV            = "DAV:"
	NSCardDAV        = "urn:ietf:params:xml:ns:carddav"
	NSCalendarServer = "http://calendarserver.org/ns/"
)

// PropName is a namespaced property name.
type PropName struct {
	Space string
	Local string
}

func (n PropName) String() string {
	return "{" + n.Space + "}" + n.Local
}

// AddressData is the property carrying card content in report responses.
var AddressData = PropName{Space: NSCardDAV, Local: "address-data"}

// Property is a resolved property value. Text is character data and is
// escaped on output; InnerXML is written verbatim and takes precedence.
type Property struct {
	Name     PropName
	Text     string
	InnerXML string
}

// PropertyFetcher resolves properties other than address-data. Names it
// cannot resolve are simply left out of the result.
type PropertyFetcher interface {
	FetchProperties(ctx context.Context, res Resource, names []PropName) ([]Property, error)
}

// PropertyFetcherFunc adapts a function to PropertyFetcher.
type PropertyFetcherFunc func(ctx context.Context, res Resource, names []PropName) ([]Property, error)

func (f PropertyFetcherFunc) FetchProperties(ctx context.Context, res Resource, names []PropName) ([]Property, error) {
	return f(ctx, res, names)
}
