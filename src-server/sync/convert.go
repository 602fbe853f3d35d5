package sync

import (
	"time"

	"remcal/src-server/ical"
	"remcal/src-server/model"
)

// RecordToModel turns a parsed remote object into its database form. The
// store stamps the children's event uid when it writes them.
func RecordToModel(rec *ical.EventRecord, calendarID string) *model.Event {
	eventModel := model.Event{
		UID:              rec.UID,
		CalendarID:       calendarID,
		Summary:          rec.Summary,
		Description:      rec.Description,
		Location:         rec.Location,
		Organizer:        rec.Organizer,
		StartDateUnixUTC: rec.StartDate.UTC().Unix(),
		EndDateUnixUTC:   rec.EndDate.UTC().Unix(),
		AllDay:           rec.AllDay,
		Timezone:         rec.Timezone,
		RecurrenceRule:   rec.RecurrenceRule,
		Sequence:         rec.Sequence,
		ETag:             rec.ETag,
		URL:              rec.URL,
		RawData:          rec.RawData,
	}
	for _, attendee := range rec.Attendees {
		eventModel.Attendees = append(eventModel.Attendees, &model.Attendee{
			Email:          attendee.Email,
			Name:           attendee.Name,
			Role:           attendee.Role,
			Status:         attendee.Status,
			ScheduleStatus: attendee.ScheduleStatus,
		})
	}
	for _, resource := range rec.Resources {
		eventModel.Resources = append(eventModel.Resources, &model.Resource{
			Name:       resource.Name,
			AdminEmail: resource.AdminEmail,
			Type:       resource.Type,
		})
	}
	return &eventModel
}

// ModelToRecord turns a database row back into the form the serializer
// consumes.
func ModelToRecord(eventModel *model.Event) *ical.EventRecord {
	rec := ical.EventRecord{
		UID:            eventModel.UID,
		Summary:        eventModel.Summary,
		Description:    eventModel.Description,
		Location:       eventModel.Location,
		Organizer:      eventModel.Organizer,
		StartDate:      time.Unix(eventModel.StartDateUnixUTC, 0).UTC(),
		EndDate:        time.Unix(eventModel.EndDateUnixUTC, 0).UTC(),
		AllDay:         eventModel.AllDay,
		Timezone:       eventModel.Timezone,
		RecurrenceRule: eventModel.RecurrenceRule,
		Sequence:       eventModel.Sequence,
		ETag:           eventModel.ETag,
		URL:            eventModel.URL,
		RawData:        eventModel.RawData,
	}
	for _, attendeeModel := range eventModel.Attendees {
		rec.Attendees = append(rec.Attendees, ical.Attendee{
			Email:          attendeeModel.Email,
			Name:           attendeeModel.Name,
			Role:           attendeeModel.Role,
			Status:         attendeeModel.Status,
			ScheduleStatus: attendeeModel.ScheduleStatus,
		})
	}
	for _, resourceModel := range eventModel.Resources {
		rec.Resources = append(rec.Resources, ical.Resource{
			Name:       resourceModel.Name,
			AdminEmail: resourceModel.AdminEmail,
			Type:       resourceModel.Type,
		})
	}
	return &rec
}
