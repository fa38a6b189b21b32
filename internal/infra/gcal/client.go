// Package gcal publishes scheduled jobs and site visits to a Google Calendar
// through a service account.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/treeshop/treeshop-ops-go/internal/domain"
	"github.com/treeshop/treeshop-ops-go/internal/infra/resilience"
	"github.com/treeshop/treeshop-ops-go/internal/port"
)

// ServiceName labels breaker state, metrics and errors.
const ServiceName = "google-calendar"

const jobIDProperty = "treeshop_job_id"

var tracer = otel.Tracer("gcal")

// Client wraps the Calendar events API with a breaker and retries.
type Client struct {
	srv        *calendar.Service
	calendarID string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	logger     *zap.Logger
}

var _ port.CalendarPublisher = (*Client)(nil)

// New creates a client over an existing Calendar service.
func New(srv *calendar.Service, calendarID string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{srv: srv, calendarID: calendarID, cb: cb, cfg: cfg, logger: logger}
}

// NewFromCredentialsFile authenticates with a service-account key file.
func NewFromCredentialsFile(ctx context.Context, path, calendarID string, timeout time.Duration, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) (*Client, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calendar credentials %s: %w", path, err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse calendar credentials: %w", err)
	}
	httpClient := jwtCfg.Client(ctx)
	httpClient.Timeout = timeout

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return New(srv, calendarID, cb, cfg, logger), nil
}

// Publish inserts the job's event, or updates it when the job already
// carries an event id. An event deleted on the calendar side is recreated.
func (c *Client) Publish(ctx context.Context, job *domain.ScheduledJob) (string, error) {
	ctx, span := tracer.Start(ctx, "GoogleCalendar.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("job.id", job.ID.String()))

	event := EventFor(job)
	var published *calendar.Event

	err := resilience.Execute(ctx, c.cb, c.cfg, func() error {
		var err error
		if job.CalendarEventID != "" {
			published, err = c.srv.Events.Update(c.calendarID, job.CalendarEventID, event).Context(ctx).Do()
			if !isGone(err) {
				return classify(err)
			}
			c.logger.Info("gcal: event missing, recreating",
				zap.String("job_id", job.ID.String()),
				zap.String("event_id", job.CalendarEventID),
			)
		}
		published, err = c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
		return classify(err)
	})
	if err != nil {
		span.RecordError(err)
		return "", wrap(err)
	}
	span.SetAttributes(attribute.String("event.id", published.Id))
	return published.Id, nil
}

// Remove deletes an event. Events already gone are not an error.
func (c *Client) Remove(ctx context.Context, eventID string) error {
	ctx, span := tracer.Start(ctx, "GoogleCalendar.Remove")
	defer span.End()
	span.SetAttributes(attribute.String("event.id", eventID))

	err := resilience.Execute(ctx, c.cb, c.cfg, func() error {
		err := c.srv.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
		if isGone(err) {
			return nil
		}
		return classify(err)
	})
	if err != nil {
		span.RecordError(err)
		return wrap(err)
	}
	return nil
}

// EventFor renders a scheduled job as a calendar event.
func EventFor(job *domain.ScheduledJob) *calendar.Event {
	title := "Job"
	if job.JobType == domain.JobTypeSiteVisit {
		title = "Site visit"
	}
	summary := fmt.Sprintf("%s: %s", title, job.CustomerName)
	if job.Status == domain.JobCancelled {
		summary = "[Cancelled] " + summary
	}

	var desc []string
	if job.Description != "" {
		desc = append(desc, job.Description)
	}
	if len(job.ServiceTypes) > 0 {
		names := make([]string, len(job.ServiceTypes))
		for i, s := range job.ServiceTypes {
			names[i] = string(s)
		}
		desc = append(desc, "Services: "+strings.Join(names, ", "))
	}
	if job.SpecialInstructions != "" {
		desc = append(desc, "Instructions: "+job.SpecialInstructions)
	}
	desc = append(desc, "Priority: "+string(job.Priority))

	return &calendar.Event{
		Summary:     summary,
		Location:    job.PropertyAddress,
		Description: strings.Join(desc, "\n"),
		Start:       &calendar.EventDateTime{DateTime: job.ScheduledStart.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: job.ScheduledEnd.Format(time.RFC3339)},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{jobIDProperty: job.ID.String()},
		},
	}
}

func isGone(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone)
}

// classify stops retries on client errors other than rate limiting.
func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return resilience.Permanent(err)
	}
	return err
}

func wrap(err error) error {
	var open *domain.ErrCircuitOpen
	if errors.As(err, &open) {
		return err
	}
	return &domain.ErrExternalService{Service: ServiceName, Err: err}
}
