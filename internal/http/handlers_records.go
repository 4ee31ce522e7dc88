package http

import (
	"errors"
	"net/http"

	"cuadre/internal/core"
	applog "cuadre/internal/log"
	"cuadre/internal/services"
)

// handleRecords looks up the rows saved for ?tienda=&fecha=. Without both
// parameters it renders the empty search form.
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	store := sanitizeInput(q.Get("tienda"))
	rawDate := sanitizeInput(q.Get("fecha"))
	lists := s.configLists(ctx)

	write := func(status int, v recordsView) {
		body, err := s.render("records.html", v)
		if err != nil {
			s.renderFailure(w, r, "records.html", err)
			return
		}
		NewHTMXResponse().Status(status).BodyHTML(body).Write(w)
	}

	if store == "" && rawDate == "" {
		write(http.StatusOK, newRecordsView("", "", nil, lists.Stores))
		return
	}

	date, err := core.ParseDate(rawDate)
	if err != nil {
		v := newRecordsView(store, rawDate, nil, lists.Stores)
		v.Message = &message{Kind: messageError, Text: msgInvalidDate}
		write(http.StatusUnprocessableEntity, v)
		return
	}

	rows, err := s.service.Lookup(ctx, store, date)
	if err != nil {
		v := newRecordsView(store, rawDate, nil, lists.Stores)
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, services.ErrLookupUnsupported):
			status = http.StatusNotImplemented
			v.Message = &message{Kind: messageWarning, Text: "Este almacenamiento no permite consultar registros"}
		case errors.Is(err, core.ErrInvalidHeader):
			status = http.StatusUnprocessableEntity
			v.Message = &message{Kind: messageError, Text: "Indique la tienda y la fecha"}
		default:
			applog.FromContext(ctx).WithComponent(applog.ComponentCuadre).ErrorContext(ctx, "Record lookup failed",
				applog.FieldOperation, applog.OpLookup,
				applog.FieldStore, store,
				applog.FieldDate, date.String(),
				applog.FieldError, err.Error())
			v.Message = &message{Kind: messageError, Text: "No se pudo consultar el libro: " + err.Error()}
		}
		write(status, v)
		return
	}

	v := newRecordsView(store, date.String(), rows, lists.Stores)
	if len(rows) == 0 {
		v.Message = &message{Kind: messageWarning, Text: "No hay cuadres guardados para " + core.RecordID(store, date)}
	}
	write(http.StatusOK, v)
}
