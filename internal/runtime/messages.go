package runtime

// Transcript messages produced by the interpreter itself.
const (
	MsgNoStart          = "No starting point found."
	MsgLoopPaused       = "Conversation paused to prevent looping"
	MsgCompleted        = "Conversation completed."
	MsgNoOptions        = "No further options available."
	MsgMissingNode      = "Conversation ended: the next step %q does not exist."
	MsgCondition        = "Condition evaluated to: %s"
	MsgConditionFailed  = "Condition could not be evaluated: %v"
	MsgCallingWebhook   = "Calling webhook: %s %s"
	MsgWebhookFailed    = "Webhook call failed: %s"
	MsgRequiredFields   = "Please complete all required fields"
	MsgEmptyInput       = "Input cannot be empty"
	MsgChooseOption     = "Please choose one of the available options"
	MsgFormSubmitted    = "Form submitted"
	MsgProviderFailed   = "Sorry, I could not get a response: %v"
	MsgMultipleStarts   = "multiple start nodes found (%s); starting at %q"
	defaultPlaceholder  = "Type your answer..."
	defaultButtonText   = "Send"
	defaultTextLabel    = "Hello!"
	defaultOptionsLabel = "Please choose an option:"
	defaultFormLabel    = "Please fill out this form:"
	defaultInputLabel   = "Please answer:"
	defaultCondLabel    = "Checking condition..."
	defaultWebhookLabel = "Making API call..."
	defaultNodeLabel    = "Message"
)
