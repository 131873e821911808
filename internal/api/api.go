package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/grussorusso/offloadledge/internal/codecache"
	"github.com/grussorusso/offloadledge/internal/procedure"
)

// Server exposes the state of the offloading server over HTTP.
type Server struct {
	Units      *codecache.Cache
	Procedures *procedure.Registry
	SessionID  func() string
	started    time.Time
}

func NewServer(units *codecache.Cache, procedures *procedure.Registry, sessionID func() string) *Server {
	return &Server{Units: units, Procedures: procedures, SessionID: sessionID, started: time.Now()}
}

// GetProcedures lists the procedures promoted so far.
func (s *Server) GetProcedures(c echo.Context) error {
	names := s.Procedures.Names()
	list := make([]ProcedureInfo, 0, len(names))
	for _, name := range names {
		b, ok := s.Procedures.Get(name)
		if !ok {
			continue
		}
		list = append(list, ProcedureInfo{Name: b.Name, ClassID: b.ClassID, RegisteredAt: b.RegisteredAt, Calls: b.Calls()})
	}
	return c.JSON(http.StatusOK, list)
}

// GetUnits lists the cached class units.
func (s *Server) GetUnits(c echo.Context) error {
	units, err := s.Units.List()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "")
	}
	return c.JSON(http.StatusOK, units)
}

// InvokeProcedure calls a promoted procedure without going through the bus.
func (s *Server) InvokeProcedure(c echo.Context) error {
	name := c.Param("proc")

	var req InvocationRequest
	err := json.NewDecoder(c.Request().Body).Decode(&req)
	if err != nil && err != io.EOF {
		log.Printf("Could not parse request: %v", err)
		return c.String(http.StatusBadRequest, "could not parse request")
	}

	res, err := s.Procedures.Call(c.Request().Context(), name, req.ResourceName, req.Input)
	if errors.Is(err, procedure.ErrNotRegistered) {
		log.Printf("Dropping request for unknown procedure '%s'", name)
		return c.JSON(http.StatusNotFound, "")
	} else if errors.Is(err, procedure.ErrBindingInProgress) {
		return c.String(http.StatusServiceUnavailable, err.Error())
	} else if err != nil {
		log.Printf("Invocation of %s failed: %v", name, err)
		return c.String(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, InvocationResponse{
		Success:  res.Success,
		Output:   res.Output,
		Duration: res.Duration,
		Errors:   res.Diagnostics,
	})
}

// GetServerStatus summarizes the server state.
func (s *Server) GetServerStatus(c echo.Context) error {
	units, err := s.Units.List()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "")
	}
	session := ""
	if s.SessionID != nil {
		session = s.SessionID()
	}
	return c.JSON(http.StatusOK, StatusInformation{
		Session:    session,
		Uptime:     time.Since(s.started).Seconds(),
		Procedures: len(s.Procedures.Names()),
		Units:      len(units),
	})
}
