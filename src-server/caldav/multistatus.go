package caldav

import (
	"encoding/xml"
	"strings"

	"github.com/samber/mo"
)

// WebDAV and CalDAV XML namespaces.
const (
	nsDAV    = "DAV:"
	nsCalDAV = "urn:ietf:params:xml:ns:caldav"
	nsCS     = "http://calendarserver.org/ns/"
	nsApple  = "http://apple.com/ns/ical/"
)

// multistatus is the generic 207 response body shared by PROPFIND and
// REPORT. One response row per resource, one propstat block per status.
type multistatus struct {
	XMLName   xml.Name     `xml:"DAV: multistatus"`
	Responses []msResponse `xml:"DAV: response"`
}

type msResponse struct {
	Href      string       `xml:"DAV: href"`
	Propstats []msPropstat `xml:"DAV: propstat"`
}

type msPropstat struct {
	Status string `xml:"DAV: status"`
	Prop   msProp `xml:"DAV: prop"`
}

// msProp holds every property this client ever asks for. Pointer fields
// keep absent distinguishable from empty.
type msProp struct {
	DisplayName          *string         `xml:"DAV: displayname"`
	GetETag              *string         `xml:"DAV: getetag"`
	GetCTag              *string         `xml:"http://calendarserver.org/ns/ getctag"`
	CalendarColor        *string         `xml:"http://apple.com/ns/ical/ calendar-color"`
	ResourceType         *msResourceType `xml:"DAV: resourcetype"`
	CurrentUserPrincipal *msHref         `xml:"DAV: current-user-principal"`
	CalendarHomeSet      *msHref         `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set"`
	SupportedComponents  *msComponentSet `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
	CalendarData         string          `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

type msHref struct {
	Href string `xml:"DAV: href"`
}

type msResourceType struct {
	Calendar *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar"`
}

type msComponentSet struct {
	Comps []msComp `xml:"urn:ietf:params:xml:ns:caldav comp"`
}

type msComp struct {
	Name string `xml:"name,attr"`
}

// resourceProps is the flattened view of one multistatus row, merged across
// its 200-status propstat blocks. Optional properties stay mo.None instead
// of collapsing to "".
type resourceProps struct {
	isCalendar   bool
	displayName  mo.Option[string]
	color        mo.Option[string]
	ctag         mo.Option[string]
	etag         mo.Option[string]
	principal    mo.Option[string]
	homeSet      mo.Option[string]
	components   mo.Option[[]string]
	calendarData string
}

// supportsEvents reports whether the collection may hold VEVENTs. Servers
// that never announce a component set are treated as event-capable.
func (p resourceProps) supportsEvents() bool {
	comps, ok := p.components.Get()
	if !ok {
		return true
	}
	for _, name := range comps {
		if name == "VEVENT" {
			return true
		}
	}
	return false
}

func collectProps(res msResponse) resourceProps {
	out := resourceProps{
		displayName: mo.None[string](),
		color:       mo.None[string](),
		ctag:        mo.None[string](),
		etag:        mo.None[string](),
		principal:   mo.None[string](),
		homeSet:     mo.None[string](),
		components:  mo.None[[]string](),
	}
	for _, ps := range res.Propstats {
		if !strings.Contains(ps.Status, "200") {
			continue
		}
		p := ps.Prop
		if p.ResourceType != nil && p.ResourceType.Calendar != nil {
			out.isCalendar = true
		}
		if p.DisplayName != nil {
			out.displayName = mo.Some(*p.DisplayName)
		}
		if p.GetETag != nil {
			out.etag = mo.Some(*p.GetETag)
		}
		if p.GetCTag != nil {
			out.ctag = mo.Some(*p.GetCTag)
		}
		if p.CalendarColor != nil {
			out.color = mo.Some(*p.CalendarColor)
		}
		if p.CurrentUserPrincipal != nil {
			out.principal = mo.Some(strings.TrimSpace(p.CurrentUserPrincipal.Href))
		}
		if p.CalendarHomeSet != nil {
			out.homeSet = mo.Some(strings.TrimSpace(p.CalendarHomeSet.Href))
		}
		if p.SupportedComponents != nil {
			names := make([]string, 0, len(p.SupportedComponents.Comps))
			for _, comp := range p.SupportedComponents.Comps {
				names = append(names, comp.Name)
			}
			out.components = mo.Some(names)
		}
		if p.CalendarData != "" {
			out.calendarData = p.CalendarData
		}
	}
	return out
}
