package service

import (
	"context"

	"roster/internal/event/compliance"
	"roster/internal/event/models"
	waivermodels "roster/internal/waiver/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	audit "roster/pkg/platform/audit"
	"roster/pkg/requestcontext"
)

// RegisterAdult admits the user to the event. Admissibility is evaluated
// before duplicate detection on every attempt.
func (s *Service) RegisterAdult(ctx context.Context, eventID id.EventID, userID id.UserID) (*models.RegistrantRecord, error) {
	return s.register(ctx, eventID, models.AdultRef(userID))
}

// RegisterChild admits one of the parent's children. The child is resolved
// once through the directory before the write loop starts.
func (s *Service) RegisterChild(ctx context.Context, eventID id.EventID, parentID id.UserID, childID id.ChildID) (*models.RegistrantRecord, error) {
	if _, err := s.children.ChildOf(ctx, parentID, childID); err != nil {
		s.metrics.ObserveRegistration(string(models.KindChild), string(dErrors.CodeOf(err)))
		return nil, err
	}
	return s.register(ctx, eventID, models.ChildRef(parentID, childID))
}

func (s *Service) register(ctx context.Context, eventID id.EventID, ref models.RegistrantRef) (*models.RegistrantRecord, error) {
	now := requestcontext.Now(ctx)
	var record *models.RegistrantRecord
	_, err := s.mutate(ctx, "register", eventID, func(e *models.Event) error {
		if err := compliance.IsAdmissible(e, now); err != nil {
			return err
		}
		if e.Find(ref) != nil {
			return dErrors.New(dErrors.CodeAlreadyRegistered, "registrant is already registered for this event")
		}
		record = models.NewRecord(ref, e.SnapshotEntries(), now)
		e.AddRecord(record, now)
		return nil
	})
	kind := string(ref.Kind())
	if err != nil {
		s.metrics.ObserveRegistration(kind, string(dErrors.CodeOf(err)))
		return nil, err
	}

	s.metrics.ObserveRegistration(kind, "ok")
	s.logger.InfoContext(ctx, "registrant registered",
		"event_id", eventID.String(),
		"registration_id", record.ID.String(),
		"kind", kind,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emitRecord(ctx, audit.EventRegistered, eventID, record, id.WaiverID{})
	return record, nil
}

// Unregister removes the registrant's active record and frees its slot in the
// same write. A later registration creates a fresh record.
func (s *Service) Unregister(ctx context.Context, eventID id.EventID, ref models.RegistrantRef) (*models.RegistrantRecord, error) {
	now := requestcontext.Now(ctx)
	var removed *models.RegistrantRecord
	_, err := s.mutate(ctx, "unregister", eventID, func(e *models.Event) error {
		r, ok := e.RemoveRecord(ref, now)
		if !ok {
			return notRegistered()
		}
		removed = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementUnregistered(string(ref.Kind()))
	s.emitRecord(ctx, audit.EventUnregistered, eventID, removed, id.WaiverID{})
	return removed, nil
}

// RecordSigning flips the registrant's entry for the template to signed. The
// template must be in both the record's ledger and the event's current set.
func (s *Service) RecordSigning(ctx context.Context, eventID id.EventID, ref models.RegistrantRef, waiverID id.WaiverID) (*models.RegistrantRecord, error) {
	now := requestcontext.Now(ctx)
	var signed *models.RegistrantRecord
	_, err := s.mutate(ctx, "sign", eventID, func(e *models.Event) error {
		r := e.Find(ref)
		if r == nil {
			return notRegistered()
		}
		if !e.HasWaiver(waiverID) {
			return dErrors.New(dErrors.CodeWaiverNotApplicable, "waiver is not part of this event")
		}
		if err := r.Sign(waiverID, now); err != nil {
			return err
		}
		e.UpdatedAt = now
		signed = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementSigned()
	s.emitRecord(ctx, audit.EventWaiverSigned, eventID, signed, waiverID)
	return signed, nil
}

// ReconcileTemplates replaces the event's template set. Every template must
// resolve in the catalog; templates new to the event must not be archived.
// Newly required templates are appended unsigned to every existing record.
func (s *Service) ReconcileTemplates(ctx context.Context, eventID id.EventID, waivers []models.EventWaiver) (*models.Event, error) {
	if err := models.ValidateWaiverSet(waivers); err != nil {
		return nil, err
	}
	templates, err := s.resolveTemplates(ctx, waivers)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var added []id.WaiverID
	e, err := s.mutate(ctx, "reconcile", eventID, func(e *models.Event) error {
		for _, w := range waivers {
			if !e.HasWaiver(w.WaiverID) && templates[w.WaiverID].Archived {
				return archivedTemplate(w.WaiverID)
			}
		}
		var err error
		added, err = e.ReplaceWaivers(waivers, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementReconciled()
	s.logger.InfoContext(ctx, "event waivers reconciled",
		"event_id", eventID.String(),
		"waivers", len(waivers),
		"newly_required", len(added),
		"request_id", requestcontext.RequestID(ctx),
	)
	s.emit(ctx, audit.Event{Action: string(audit.EventReconciled), EventID: eventID})
	return e, nil
}

func (s *Service) resolveTemplates(ctx context.Context, waivers []models.EventWaiver) (map[id.WaiverID]*waivermodels.Template, error) {
	out := make(map[id.WaiverID]*waivermodels.Template, len(waivers))
	for _, w := range waivers {
		t, err := s.catalog.Get(ctx, w.WaiverID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "waiver template "+w.WaiverID.String()+" does not exist")
			}
			return nil, err
		}
		out[w.WaiverID] = t
	}
	return out, nil
}

func notRegistered() error {
	return dErrors.New(dErrors.CodeNotRegistered, "registrant is not registered for this event")
}

func archivedTemplate(waiverID id.WaiverID) error {
	return dErrors.New(dErrors.CodeInvalidInput, "waiver template "+waiverID.String()+" is archived")
}

func (s *Service) emitRecord(ctx context.Context, action audit.AuditEvent, eventID id.EventID, r *models.RegistrantRecord, waiverID id.WaiverID) {
	event := audit.Event{
		Action:         string(action),
		EventID:        eventID,
		UserID:         r.UserID,
		RegistrationID: r.ID,
		WaiverID:       waiverID,
	}
	if r.ChildID != nil {
		event.ChildID = *r.ChildID
	}
	s.emit(ctx, event)
}

// emit publishes after commit. Failures are logged and never undo the write.
func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if actor := requestcontext.UserID(ctx); !actor.IsNil() && actor != event.UserID {
		event.ActorID = actor.String()
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"event_id", event.EventID.String(),
			"error", err,
			"request_id", event.RequestID,
		)
	}
}
