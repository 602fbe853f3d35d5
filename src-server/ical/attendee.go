package ical

import (
	"regexp"
	"strings"
)

// resourceKeywords flag an attendee as bookable equipment when they appear
// in its display name or email address.
var resourceKeywords = []string{"room", "projector", "chair"}

var attendeeLinePattern = regexp.MustCompile(`(?mi)^ATTENDEE([^:\r\n]*):(.+)$`)

// classifyAttendees splits raw ATTENDEE data into people and resources.
// Resource detection is first-match-wins: CUTYPE=RESOURCE, then
// ROLE=NON-PARTICIPANT, then a resource keyword in the name or email.
// Resource emails land in a de-duplication set and are excluded from the
// final attendee list.
func classifyAttendees(decoded []DecodedAttendee) ([]Attendee, []Resource) {
	var attendees []Attendee
	var resources []Resource
	resourceEmails := make(map[string]struct{})

	for _, da := range decoded {
		email := mailtoAddress(da.Value)
		name := da.Params["CN"]

		if isResourceAttendee(da.Params, name, email) {
			key := strings.ToLower(email)
			if email != "" {
				if _, dup := resourceEmails[key]; dup {
					continue
				}
				resourceEmails[key] = struct{}{}
			}
			resources = append(resources, Resource{
				Name:       resourceName(name, email),
				AdminEmail: email,
				Type:       resourceType(name, email),
			})
			continue
		}

		attendees = append(attendees, Attendee{
			Email:          email,
			Name:           name,
			Role:           da.Params["ROLE"],
			Status:         da.Params["PARTSTAT"],
			ScheduleStatus: da.Params["SCHEDULE-STATUS"],
		})
	}

	kept := attendees[:0]
	for _, a := range attendees {
		if a.Email != "" {
			if _, isResource := resourceEmails[strings.ToLower(a.Email)]; isResource {
				continue
			}
		}
		kept = append(kept, a)
	}
	return kept, resources
}

func isResourceAttendee(params map[string]string, name, email string) bool {
	if strings.EqualFold(params["CUTYPE"], "RESOURCE") {
		return true
	}
	if strings.EqualFold(params["ROLE"], "NON-PARTICIPANT") {
		return true
	}
	return containsResourceKeyword(name) || containsResourceKeyword(email)
}

func containsResourceKeyword(s string) bool {
	lower := strings.ToLower(s)
	for _, kw := range resourceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func resourceName(name, email string) string {
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func resourceType(name, email string) string {
	for _, kw := range resourceKeywords {
		if strings.Contains(strings.ToLower(name), kw) || strings.Contains(strings.ToLower(email), kw) {
			return strings.ToUpper(kw[:1]) + kw[1:]
		}
	}
	return ""
}

// scanRawAttendees is the fallback strategy when the standards parser saw no
// structured ATTENDEE data: unfold, then regex-scan the text for attendee
// lines and classify whatever is recovered.
func scanRawAttendees(text string) ([]Attendee, []Resource) {
	unfolded := unfoldLines(text)
	matches := attendeeLinePattern.FindAllStringSubmatch(unfolded, -1)
	decoded := make([]DecodedAttendee, 0, len(matches))
	for _, m := range matches {
		decoded = append(decoded, DecodedAttendee{
			Value:  strings.TrimSpace(m[2]),
			Params: parseParamList(m[1]),
		})
	}
	return classifyAttendees(decoded)
}

// parseParamList loosely parses ";KEY=value;KEY=value" property parameters,
// tolerating missing values and stray quoting.
func parseParamList(raw string) map[string]string {
	params := make(map[string]string)
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		params[key] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}
	return params
}

// mailtoAddress extracts the email address out of a cal-address value,
// tolerating doubled colons and missing mailto: prefixes.
func mailtoAddress(value string) string {
	v := strings.TrimSpace(value)
	if idx := strings.Index(strings.ToLower(v), "mailto:"); idx >= 0 {
		v = v[idx+len("mailto:"):]
		v = strings.TrimLeft(v, ":")
	}
	if m := emailPattern.FindString(v); m != "" {
		return m
	}
	return strings.TrimSpace(v)
}
