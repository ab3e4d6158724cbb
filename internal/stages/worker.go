package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/groupby/gb-deployment-tools/internal/failures"
)

const (
	workerReadErrorTemplateConstant   = "unable to read stage message: %w"
	workerDecodeErrorTemplateConstant = "unable to decode stage message: %w"
	workerProtocolFailureCode         = failures.Code("StageProtocolFailed")
)

// Serve reads one message from input, dispatches it, and on failure writes a
// FailurePayload line to output before returning the error.
func Serve(executionContext context.Context, dispatcher *Dispatcher, input io.Reader, output io.Writer) error {
	if dispatcher == nil {
		return ErrDispatcherNotConfigured
	}

	encodedMessage, readError := io.ReadAll(input)
	if readError != nil {
		return reportFailure(output, failures.Wrap(workerProtocolFailureCode, fmt.Errorf(workerReadErrorTemplateConstant, readError)))
	}

	var message Message
	if decodeError := json.Unmarshal(encodedMessage, &message); decodeError != nil {
		return reportFailure(output, failures.Wrap(workerProtocolFailureCode, fmt.Errorf(workerDecodeErrorTemplateConstant, decodeError)))
	}

	if dispatchError := dispatcher.Dispatch(executionContext, message); dispatchError != nil {
		return reportFailure(output, dispatchError)
	}
	return nil
}

func reportFailure(output io.Writer, failure error) error {
	code, _ := failures.CodeOf(failure)
	encodedPayload, encodeError := json.Marshal(FailurePayload{Code: code, Message: failure.Error()})
	if encodeError == nil {
		_, _ = fmt.Fprintln(output, string(encodedPayload))
	}
	return failure
}
