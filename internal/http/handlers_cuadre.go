package http

import (
	"errors"
	"fmt"
	"net/http"

	"cuadre/internal/core"
	applog "cuadre/internal/log"
	"cuadre/internal/services"
	"cuadre/internal/session"
)

const (
	msgInvalidAmount  = "Valor inválido"
	msgInvalidDate    = "Fecha inválida"
	msgItemRejected   = "El valor debe ser mayor a cero"
	msgExpenseMissing = "El gasto necesita una descripción y un valor mayor a cero"
	msgCashRejected   = "Seleccione el tipo de efectivo y un valor mayor a cero"
	msgHeaderSaved    = "Encabezado actualizado"
	msgFormCleared    = "Formulario limpio"

	msgSessionNotCleared = "El formulario no se pudo limpiar; revise antes de volver a guardar."
)

// commandFunc mutates the session form and reports whether a line item was
// accepted.
type commandFunc func(f *core.Form) (accepted bool, err error)

// runCommand applies cmd under the session lock and renders the new state.
// Rejected items leave the form unchanged and still answer 200.
func (s *Server) runCommand(w http.ResponseWriter, r *http.Request, rejected string, cmd commandFunc) {
	var accepted bool
	f, err := s.sessions.Update(w, r, func(f *core.Form) error {
		var err error
		accepted, err = cmd(f)
		return err
	})
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}

	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentCuadre)
	if !accepted {
		s.metrics.itemsRejected.Add(1)
		logger.DebugContext(ctx, "Line item rejected", applog.FieldPath, r.URL.Path, applog.FieldOperation, applog.OpAddItem)
		s.respondState(w, r, NewHTMXResponse(), f, &message{Kind: messageWarning, Text: rejected})
		return
	}
	s.metrics.itemsAdded.Add(1)
	logger.DebugContext(ctx, "Line item added",
		applog.FieldPath, r.URL.Path,
		applog.FieldOperation, applog.OpAddItem,
		applog.FieldItems, f.ItemCount())
	s.respondState(w, r, NewHTMXResponse(), f, nil)
}

// invalidInput answers 422 with the unchanged state and msg.
func (s *Server) invalidInput(w http.ResponseWriter, r *http.Request, field, msg string) {
	s.metrics.invalidInput.Add(1)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentCuadre).InfoContext(r.Context(), "Unparseable input",
		applog.FieldPath, r.URL.Path,
		applog.FieldOperation, applog.OpParse,
		"field", field)

	_, f, err := s.sessions.Load(w, r)
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	s.respondStateWithErrors(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity), f,
		&message{Kind: messageError, Text: msg}, map[string]string{field: "invalid"})
}

func (s *Server) parseCommand(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return nil, false
	}
	p, resp := ParseBodyOrFail(r)
	if resp != nil {
		resp.Write(w)
		return nil, false
	}
	return p, true
}

func (s *Server) handleSetHeader(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseCommand(w, r)
	if !ok {
		return
	}
	declared, err := p.Amount("total_declarado")
	if err != nil || declared.IsNegative() {
		s.invalidInput(w, r, "total_declarado", msgInvalidAmount)
		return
	}
	date, err := p.Date("fecha")
	if err != nil {
		s.invalidInput(w, r, "fecha", msgInvalidDate)
		return
	}

	f, err := s.sessions.Update(w, r, func(f *core.Form) error {
		return f.SetHeader(p.Get("tienda"), date, p.Get("factura_inicial"), p.Get("factura_final"), declared)
	})
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	s.respondState(w, r, NewHTMXResponse(), f, &message{Kind: messageSuccess, Text: msgHeaderSaved})
}

func (s *Server) handleAddCardPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseCommand(w, r)
	if !ok {
		return
	}
	amount, err := p.Amount("valor")
	if err != nil {
		s.invalidInput(w, r, "valor", msgInvalidAmount)
		return
	}
	s.runCommand(w, r, msgItemRejected, func(f *core.Form) (bool, error) {
		return f.AddCardPayment(amount), nil
	})
}

// handleAddBankDeposit defaults the deposit date to the record date.
func (s *Server) handleAddBankDeposit(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseCommand(w, r)
	if !ok {
		return
	}
	amount, err := p.Amount("valor")
	if err != nil {
		s.invalidInput(w, r, "valor", msgInvalidAmount)
		return
	}
	date, err := p.Date("fecha")
	if err != nil {
		s.invalidInput(w, r, "fecha_consignacion", msgInvalidDate)
		return
	}
	bank := p.Get("banco")
	s.runCommand(w, r, msgItemRejected, func(f *core.Form) (bool, error) {
		d := date
		if d.IsZero() {
			d = f.Date
		}
		return f.AddBankDeposit(bank, amount, d), nil
	})
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseCommand(w, r)
	if !ok {
		return
	}
	amount, err := p.Amount("valor")
	if err != nil {
		s.invalidInput(w, r, "valor", msgInvalidAmount)
		return
	}
	description := p.Get("descripcion")
	s.runCommand(w, r, msgExpenseMissing, func(f *core.Form) (bool, error) {
		return f.AddExpense(description, amount), nil
	})
}

// handleAddCashMovement accepts the stored labels and their short names.
// Unknown kinds reach the form as-is and are rejected there.
func (s *Server) handleAddCashMovement(w http.ResponseWriter, r *http.Request) {
	p, ok := s.parseCommand(w, r)
	if !ok {
		return
	}
	amount, err := p.Amount("valor")
	if err != nil {
		s.invalidInput(w, r, "valor", msgInvalidAmount)
		return
	}
	kind, known := core.ParseCashKind(p.Get("tipo"))
	if !known {
		kind = core.CashKind(p.Get("tipo"))
	}
	s.runCommand(w, r, msgCashRejected, func(f *core.Form) (bool, error) {
		return f.AddCashMovement(kind, amount), nil
	})
}

// handleSave runs the save gate. The form survives every failure.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()

	var (
		result services.SaveResult
		items  int
	)
	f, err := s.sessions.Update(w, r, func(f *core.Form) error {
		items = f.ItemCount()
		var err error
		result, err = s.service.Save(ctx, f)
		return err
	})

	var (
		mismatch *core.MismatchError
		gwErr    *core.GatewayWriteError
		writeErr *session.WriteError
	)
	switch {
	case err == nil:
		s.respondSaved(w, r, f, result, items, "")

	case errors.As(err, &writeErr) && result.ID != "":
		// The row is in the ledger; only the cleared form could not be stored.
		s.events.LogError(ctx, "Saved form could not be cleared", err, applog.ComponentSession, applog.OpSave,
			applog.NewFields().WithRecord(result.ID, result.Row.Store, result.Row.Date))
		if id, idErr := s.sessions.SessionID(w, r); idErr == nil {
			if resetErr := s.sessions.Reset(ctx, id); resetErr != nil {
				s.events.LogError(ctx, "Session reset after save failed", resetErr, applog.ComponentSession, applog.OpSave, nil)
			}
		}
		s.respondSaved(w, r, f, result, items, msgSessionNotCleared)

	case f == nil:
		s.sessionFailure(w, r, err)

	case errors.As(err, &mismatch):
		s.metrics.mismatches.Add(1)
		s.respondState(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity), f, &message{
			Kind: messageError,
			Text: fmt.Sprintf("El cuadre no coincide: diferencia de %s", formatPesos(mismatch.Difference)),
		})

	case errors.Is(err, core.ErrInvalidHeader):
		s.metrics.invalidHeader.Add(1)
		s.respondStateWithErrors(w, r, NewHTMXResponse().Status(http.StatusUnprocessableEntity), f, &message{
			Kind: messageError,
			Text: "Complete la tienda y la fecha antes de guardar",
		}, core.FieldErrors(err))

	case errors.As(err, &gwErr):
		s.metrics.gatewayErrors.Add(1)
		s.events.LogError(ctx, "Ledger write failed", err, applog.ComponentCuadre, applog.OpSave,
			applog.NewFields().WithRecord(f.RecordID(), f.Store, f.Date.String()))
		msg := "No se pudo guardar el cuadre: " + gwErr.Err.Error()
		s.respondState(w, r, NewHTMXResponse().Status(http.StatusBadGateway).TriggerErrorNotification(msg), f,
			&message{Kind: messageError, Text: msg})

	default:
		s.events.LogError(ctx, "Save failed", err, applog.ComponentCuadre, applog.OpSave, nil)
		InternalServerError("No se pudo guardar el cuadre").Write(w)
	}
}

// respondSaved answers a save whose row reached the ledger. A non-empty
// warning replaces the success notification.
func (s *Server) respondSaved(w http.ResponseWriter, r *http.Request, f *core.Form, result services.SaveResult, items int, warning string) {
	s.metrics.saves.Add(1)
	s.events.LogRecordSaved(r.Context(), result.ID, result.Row.Store, result.Row.Date, result.Ref, items, result.Duplicate)

	resp := NewHTMXResponse().
		TriggerCuadreSaved(result.ID, result.Ref, result.Duplicate).
		TriggerFormReset()
	msg := &message{Kind: messageSuccess, Text: fmt.Sprintf("Cuadre %s guardado", result.ID)}
	if result.Duplicate {
		s.metrics.duplicates.Add(1)
		msg = &message{Kind: messageWarning, Text: fmt.Sprintf("Cuadre %s guardado. Ya existía un registro para esta tienda y fecha.", result.ID)}
	}
	if warning != "" {
		msg = &message{Kind: messageWarning, Text: fmt.Sprintf("Cuadre %s guardado. %s", result.ID, warning)}
	}
	if msg.Kind == messageWarning {
		resp.TriggerWarningNotification(msg.Text)
	} else {
		resp.TriggerSuccessNotification(msg.Text)
	}
	s.respondState(w, r, resp, f, msg)
}

// handleReset discards the session form, header included. It runs under the
// session lock so an in-flight add cannot write the old form back.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	f, err := s.sessions.Update(w, r, func(f *core.Form) error {
		f.Clear()
		return nil
	})
	if err != nil {
		s.sessionFailure(w, r, err)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentCuadre).InfoContext(r.Context(), "Form cleared")
	s.respondState(w, r, NewHTMXResponse().TriggerFormReset(), f, &message{Kind: messageSuccess, Text: msgFormCleared})
}
