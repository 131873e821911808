package api

import "time"

type InvocationRequest struct {
	ResourceName string
	Input        string
}

type InvocationResponse struct {
	Success  bool
	Output   string
	Duration float64
	Errors   string
}

type ProcedureInfo struct {
	Name         string
	ClassID      string
	RegisteredAt time.Time
	Calls        int64
}

type StatusInformation struct {
	Session    string
	Uptime     float64
	Procedures int
	Units      int
}
