package dap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-dap"

	"github.com/ctagard/dbgpd/internal/errors"
)

// Request timeouts.
const (
	RequestTimeout = 10 * time.Second
	LaunchTimeout  = 30 * time.Second
)

// Client provides a high-level API for DAP operations
type Client struct {
	transport *Transport
	logger    *slog.Logger

	// Response handling
	pendingRequests map[int]chan dap.ResponseMessage
	mu              sync.Mutex

	// Capabilities from initialize response
	capabilities dap.Capabilities

	// Initialization synchronization
	initialized     chan struct{}
	initializedOnce sync.Once

	// Stopped, terminated and exited events, in arrival order. Closed when
	// the read loop ends.
	events chan dap.EventMessage

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient creates a new DAP client with the given transport
func NewClient(transport *Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport:       transport,
		logger:          logger,
		pendingRequests: make(map[int]chan dap.ResponseMessage),
		initialized:     make(chan struct{}),
		events:          make(chan dap.EventMessage, 64),
		ctx:             ctx,
		cancel:          cancel,
	}

	// Start the message reader goroutine
	c.wg.Add(1)
	go c.readLoop()

	return c
}

// Events returns the execution events of the debuggee.
func (c *Client) Events() <-chan dap.EventMessage {
	return c.events
}

// readLoop continuously reads messages from the transport
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.events)

	consecutiveErrors := 0
	const maxConsecutiveErrors = 5

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		msg, err := c.transport.Receive()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				consecutiveErrors++
				c.logger.Warn("DAP transport error", "attempt", consecutiveErrors, "max", maxConsecutiveErrors, "err", err)

				// Stop on persistent failures instead of spinning on a dead connection
				if consecutiveErrors >= maxConsecutiveErrors {
					c.logger.Error("DAP transport: too many consecutive errors, stopping read loop")
					return
				}
				continue
			}
		}

		consecutiveErrors = 0
		c.handleMessage(msg)
	}
}

// handleMessage routes incoming messages to the appropriate handler
func (c *Client) handleMessage(msg dap.Message) {
	switch m := msg.(type) {
	case dap.ResponseMessage:
		seq := m.GetResponse().RequestSeq
		c.mu.Lock()
		if ch, ok := c.pendingRequests[seq]; ok {
			ch <- m
			delete(c.pendingRequests, seq)
		}
		c.mu.Unlock()

	case *dap.InitializedEvent:
		c.initializedOnce.Do(func() {
			close(c.initialized)
		})

	case *dap.StoppedEvent, *dap.TerminatedEvent, *dap.ExitedEvent:
		select {
		case c.events <- m.(dap.EventMessage):
		case <-c.ctx.Done():
		}

	case *dap.OutputEvent:
		c.logger.Debug("debuggee output", "category", m.Body.Category, "output", m.Body.Output)

	default:
		c.logger.Debug("ignoring DAP message", "type", fmt.Sprintf("%T", msg))
	}
}

// sendRequest sends a request and waits for the response
func (c *Client) sendRequest(req dap.RequestMessage, timeout time.Duration) (dap.ResponseMessage, error) {
	r := req.GetRequest()
	r.Type = "request"
	r.Seq = c.transport.NextSeq()

	respCh := make(chan dap.ResponseMessage, 1)
	c.mu.Lock()
	c.pendingRequests[r.Seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pendingRequests, r.Seq)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pendingRequests, r.Seq)
		c.mu.Unlock()
		return nil, errors.DAPTimeout(r.Command, int(timeout.Seconds()))
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// call sends req and checks that the adapter answered it successfully with
// a response of type T.
func call[T dap.ResponseMessage](c *Client, req dap.RequestMessage, timeout time.Duration) (T, error) {
	var zero T

	resp, err := c.sendRequest(req, timeout)
	if err != nil {
		return zero, err
	}

	if r := resp.GetResponse(); !r.Success {
		return zero, errors.DAPRequestFailed(req.GetRequest().Command, r.Message)
	}

	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected response type: %T", resp)
	}
	return typed, nil
}

func request(command string) dap.Request {
	return dap.Request{Command: command}
}

// Initialize sends the initialize request
func (c *Client) Initialize(clientID, clientName string) error {
	req := &dap.InitializeRequest{
		Request: request("initialize"),
		Arguments: dap.InitializeRequestArguments{
			ClientID:             clientID,
			ClientName:           clientName,
			AdapterID:            "go",
			Locale:               "en-US",
			LinesStartAt1:        true,
			ColumnsStartAt1:      true,
			PathFormat:           "path",
			SupportsVariableType: true,
		},
	}

	resp, err := call[*dap.InitializeResponse](c, req, RequestTimeout)
	if err != nil {
		return errors.DAPInitFailed(err)
	}

	c.capabilities = resp.Body
	return nil
}

// WaitInitialized waits for the initialized event with a timeout
func (c *Client) WaitInitialized(timeout time.Duration) error {
	select {
	case <-c.initialized:
		return nil
	case <-time.After(timeout):
		return errors.DAPTimeout("initialized event", int(timeout.Seconds()))
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// LaunchAsync sends a launch request without waiting for the response.
// Adapters may hold the response until configurationDone.
func (c *Client) LaunchAsync(args map[string]interface{}) (<-chan error, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal launch args: %w", err)
	}

	req := &dap.LaunchRequest{
		Request:   request("launch"),
		Arguments: argsJSON,
	}

	done := make(chan error, 1)
	go func() {
		_, err := call[*dap.LaunchResponse](c, req, LaunchTimeout)
		done <- err
	}()
	return done, nil
}

// Launch starts the debuggee: initialize handshake, launch request, then
// configurationDone once the adapter reports it is initialized, if the
// adapter supports it. With stopOnEntry set the first stopped event follows.
func (c *Client) Launch(args map[string]interface{}) error {
	if err := c.Initialize("dbgpd", "dbgpd"); err != nil {
		return err
	}

	program, _ := args["program"].(string)
	launched, err := c.LaunchAsync(args)
	if err != nil {
		return errors.DAPLaunchFailed(program, err)
	}

	if err := c.WaitInitialized(RequestTimeout); err != nil {
		return errors.DAPLaunchFailed(program, err)
	}
	if c.capabilities.SupportsConfigurationDoneRequest {
		if err := c.ConfigurationDone(); err != nil {
			return errors.DAPLaunchFailed(program, err)
		}
	}

	if err := <-launched; err != nil {
		return errors.DAPLaunchFailed(program, err)
	}
	return nil
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone() error {
	_, err := call[*dap.ConfigurationDoneResponse](c, &dap.ConfigurationDoneRequest{
		Request: request("configurationDone"),
	}, RequestTimeout)
	return err
}

// Disconnect ends the debug session
func (c *Client) Disconnect(terminateDebuggee bool) error {
	_, err := call[*dap.DisconnectResponse](c, &dap.DisconnectRequest{
		Request:   request("disconnect"),
		Arguments: &dap.DisconnectArguments{TerminateDebuggee: terminateDebuggee},
	}, RequestTimeout)
	return err
}

// StackTrace gets the stack trace for a thread
func (c *Client) StackTrace(threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	resp, err := call[*dap.StackTraceResponse](c, &dap.StackTraceRequest{
		Request: request("stackTrace"),
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}, RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Body.StackFrames, nil
}

// Scopes gets the scopes for a stack frame
func (c *Client) Scopes(frameID int) ([]dap.Scope, error) {
	resp, err := call[*dap.ScopesResponse](c, &dap.ScopesRequest{
		Request:   request("scopes"),
		Arguments: dap.ScopesArguments{FrameId: frameID},
	}, RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Body.Scopes, nil
}

// Variables gets the variables behind a reference
func (c *Client) Variables(variablesRef int) ([]dap.Variable, error) {
	resp, err := call[*dap.VariablesResponse](c, &dap.VariablesRequest{
		Request:   request("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	}, RequestTimeout)
	if err != nil {
		return nil, err
	}
	return resp.Body.Variables, nil
}

// Continue continues execution
func (c *Client) Continue(threadID int) error {
	_, err := call[*dap.ContinueResponse](c, &dap.ContinueRequest{
		Request:   request("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	}, RequestTimeout)
	return err
}

// StepIn steps into the next statement
func (c *Client) StepIn(threadID int) error {
	_, err := call[*dap.StepInResponse](c, &dap.StepInRequest{
		Request:   request("stepIn"),
		Arguments: dap.StepInArguments{ThreadId: threadID},
	}, RequestTimeout)
	return err
}

// Pause stops a running debuggee; a stopped event follows the response
func (c *Client) Pause(threadID int) error {
	_, err := call[*dap.PauseResponse](c, &dap.PauseRequest{
		Request:   request("pause"),
		Arguments: dap.PauseArguments{ThreadId: threadID},
	}, RequestTimeout)
	return err
}

// Close shuts down the client
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}
