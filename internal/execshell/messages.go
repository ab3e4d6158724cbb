package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	buildScriptLabelTemplateConstant        = "build script %q"
)

const (
	gitStatusSubcommandNameConstant   = "status"
	gitCheckoutSubcommandNameConstant = "checkout"
	gitResetSubcommandNameConstant    = "reset"
	gitPushSubcommandNameConstant     = "push"
	gitFetchSubcommandNameConstant    = "fetch"
	gitAddSubcommandNameConstant      = "add"
	gitCommitSubcommandNameConstant   = "commit"
	gitLogSubcommandNameConstant      = "log"
	gitBranchSubcommandNameConstant   = "branch"
	gitMessageFlagConstant            = "-m"
	gitFlagPrefixConstant             = "-"
)

// gitMessageTemplates holds the start, success, failure, and execution failure
// templates for one git subcommand. Each template receives the subject and the
// working directory; failure templates additionally receive the exit code and
// the standard error suffix.
type gitMessageTemplates struct {
	start            string
	success          string
	failure          string
	executionFailure string
}

var gitSubcommandMessageTemplates = map[string]gitMessageTemplates{
	gitStatusSubcommandNameConstant: {
		start:            "Reviewing working tree status%s in %s",
		success:          "Collected working tree status%s for %s",
		failure:          "Failed to review working tree status%s in %s (exit code %d%s)",
		executionFailure: "Unable to review working tree status%s in %s: %s",
	},
	gitCheckoutSubcommandNameConstant: {
		start:            "Switching to %s in %s",
		success:          "Switched to %s in %s",
		failure:          "Failed to switch to %s in %s (exit code %d%s)",
		executionFailure: "Unable to switch to %s in %s: %s",
	},
	gitResetSubcommandNameConstant: {
		start:            "Resetting to %s in %s",
		success:          "Reset to %s in %s",
		failure:          "Failed to reset to %s in %s (exit code %d%s)",
		executionFailure: "Unable to reset to %s in %s: %s",
	},
	gitPushSubcommandNameConstant: {
		start:            "Pushing %s from %s",
		success:          "Pushed %s from %s",
		failure:          "Failed to push %s from %s (exit code %d%s)",
		executionFailure: "Unable to push %s from %s: %s",
	},
	gitFetchSubcommandNameConstant: {
		start:            "Fetching %s in %s",
		success:          "Fetched %s in %s",
		failure:          "Failed to fetch %s in %s (exit code %d%s)",
		executionFailure: "Unable to fetch %s in %s: %s",
	},
	gitAddSubcommandNameConstant: {
		start:            "Staging %s in %s",
		success:          "Staged %s in %s",
		failure:          "Failed to stage %s in %s (exit code %d%s)",
		executionFailure: "Unable to stage %s in %s: %s",
	},
	gitCommitSubcommandNameConstant: {
		start:            "Creating commit %q in %s",
		success:          "Created commit %q in %s",
		failure:          "Failed to create commit %q in %s (exit code %d%s)",
		executionFailure: "Unable to create commit %q in %s: %s",
	},
	gitLogSubcommandNameConstant: {
		start:            "Reading commit log %s in %s",
		success:          "Read commit log %s in %s",
		failure:          "Failed to read commit log %s in %s (exit code %d%s)",
		executionFailure: "Unable to read commit log %s in %s: %s",
	},
	gitBranchSubcommandNameConstant: {
		start:            "Creating branch %s in %s",
		success:          "Created branch %s in %s",
		failure:          "Failed to create branch %s in %s (exit code %d%s)",
		executionFailure: "Unable to create branch %s in %s: %s",
	},
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	switch command.Name {
	case CommandGit:
		return formatter.describeGitMessage(command, result, failure, stage)
	case CommandShell:
		return formatter.describeShellMessage(command, result, failure, stage)
	default:
		return formatter.buildGenericMessage(formatter.formatCommandLabel(command), result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	arguments := command.Details.Arguments
	if len(arguments) == 0 {
		return formatter.buildGenericMessage(formatter.formatCommandLabel(command), result, failure, stage)
	}

	subcommand := strings.TrimSpace(arguments[0])
	templates, known := gitSubcommandMessageTemplates[subcommand]
	if !known {
		return formatter.buildGenericMessage(formatter.formatCommandLabel(command), result, failure, stage)
	}

	subject := formatter.describeGitSubject(subcommand, arguments[1:])
	workingDirectory := formatter.describeWorkingDirectory(command)

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(templates.start, subject, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(templates.success, subject, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(templates.failure, subject, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(templates.executionFailure, subject, workingDirectory, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) describeGitSubject(subcommand string, arguments []string) string {
	switch subcommand {
	case gitStatusSubcommandNameConstant:
		return emptyStringConstant
	case gitCommitSubcommandNameConstant:
		return formatter.ensureValue(findFlagValue(arguments, gitMessageFlagConstant))
	default:
		positional := make([]string, 0, len(arguments))
		for _, argument := range arguments {
			trimmed := strings.TrimSpace(argument)
			if len(trimmed) == 0 || strings.HasPrefix(trimmed, gitFlagPrefixConstant) {
				continue
			}
			positional = append(positional, trimmed)
		}
		return formatter.ensureValue(strings.Join(positional, commandArgumentsJoinSeparatorConstant))
	}
}

func (formatter CommandMessageFormatter) describeShellMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	script := findFlagValue(command.Details.Arguments, shellScriptFlagConstant)
	if len(script) == 0 {
		return formatter.buildGenericMessage(formatter.formatCommandLabel(command), result, failure, stage)
	}
	label := fmt.Sprintf(buildScriptLabelTemplateConstant, script) + formatter.formatWorkingDirectorySuffix(command)
	return formatter.buildGenericMessage(label, result, failure, stage)
}

func (formatter CommandMessageFormatter) buildGenericMessage(label string, result ExecutionResult, failure error, stage messageStage) string {
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, label)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, label)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, label, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	default:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, label, formatter.describeFailure(failure))
	}
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	if len(command.Details.Arguments) > 0 {
		commandParts = append(commandParts, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	commandLabel := strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func findFlagValue(arguments []string, flag string) string {
	for argumentIndex := 0; argumentIndex < len(arguments)-1; argumentIndex++ {
		if arguments[argumentIndex] == flag {
			return arguments[argumentIndex+1]
		}
	}
	return emptyStringConstant
}
