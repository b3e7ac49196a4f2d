package domain

// AttemptResponse is the JSON record exposed per attempt.
type AttemptResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TxHandle string `json:"tx_handle,omitempty"`
	Method   string `json:"method,omitempty"`
	Error    string `json:"error,omitempty"`
}

// MonitorResponse is the JSON record exposed per monitor outcome.
type MonitorResponse struct {
	Status    string  `json:"status"`
	TxHandle  string  `json:"tx_handle,omitempty"`
	GasUsed   *uint64 `json:"gas_used,omitempty"`
	Timestamp *int64  `json:"timestamp,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// NewAttemptResponse converts an attempt outcome into its JSON record.
func NewAttemptResponse(o Outcome) AttemptResponse {
	switch v := o.(type) {
	case *Success:
		msg := "Vault swap successful"
		if v.Method == MethodSecondary {
			msg = "Direct swap successful"
		}
		return AttemptResponse{
			Success:  true,
			Message:  msg,
			TxHandle: v.TxHandle,
			Method:   v.Method.String(),
		}
	case *Failure:
		return AttemptResponse{
			Success: false,
			Message: v.Error(),
			Error:   string(v.Kind),
		}
	default:
		return AttemptResponse{Success: false, Message: "no outcome", Error: string(FailureExecutionError)}
	}
}

// NewMonitorResponse converts a monitor outcome into its JSON record.
func NewMonitorResponse(handle string, o MonitorOutcome) MonitorResponse {
	resp := MonitorResponse{TxHandle: handle}
	if o == nil {
		resp.Status = MonitorStatusError
		resp.Error = "no outcome"
		return resp
	}
	resp.Status = o.Status()
	switch v := o.(type) {
	case Confirmed:
		gas := v.GasUsed
		ts := v.Timestamp.Unix()
		resp.GasUsed = &gas
		resp.Timestamp = &ts
	case Reverted:
		resp.Error = v.Detail
	case MonitorError:
		resp.Error = v.Detail
	}
	return resp
}
