package runtime

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/chatflow/pkg/domain"
)

func (r *run) submitOption(node domain.Node, resp domain.Response) {
	var cfg domain.OptionsConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		r.logger.Warn("invalid options config", "node_id", node.ID, "err", err)
	}

	idx, ok := optionIndex(cfg.Options, resp)
	if !ok {
		r.say(domain.RoleSystem, MsgChooseOption, node.ID, nil)
		return
	}

	label := fmt.Sprintf("Option %d", idx+1)
	if idx >= 0 && idx < len(cfg.Options) {
		label = cfg.Options[idx]
		r.capture(variableName(cfg.Variable, node.ID), label)
	}
	r.say(domain.RoleUser, label, node.ID, nil)
	r.follow(node.ID, domain.OptionHandlePrefix+strconv.Itoa(idx), true)
}

// optionIndex reads the chosen option from an explicit index, a label match,
// or a 1-based number typed as text.
func optionIndex(options []string, resp domain.Response) (int, bool) {
	if resp.OptionIndex != nil {
		return *resp.OptionIndex, true
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return 0, false
	}
	for i, opt := range options {
		if strings.EqualFold(strings.TrimSpace(opt), text) {
			return i, true
		}
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(options) {
		return n - 1, true
	}
	return 0, false
}

func (r *run) submitForm(node domain.Node, resp domain.Response) {
	var cfg domain.FormConfig
	if err := node.DecodeConfig(&cfg); err != nil {
		r.logger.Warn("invalid form config", "node_id", node.ID, "err", err)
	}

	for _, f := range cfg.Fields {
		if f.Required && strings.TrimSpace(resp.Fields[f.Key]) == "" {
			r.say(domain.RoleSystem, MsgRequiredFields, node.ID, nil)
			return
		}
	}

	r.say(domain.RoleUser, MsgFormSubmitted, node.ID, nil)
	for _, f := range cfg.Fields {
		if v, ok := resp.Fields[f.Key]; ok {
			r.capture(f.Key, v)
		}
	}
	r.follow(node.ID, "", false)
}

func (r *run) submitInput(node domain.Node, resp domain.Response) {
	cfg, err := node.InputConfig()
	if err != nil {
		r.logger.Warn("invalid input config", "node_id", node.ID, "err", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		r.say(domain.RoleSystem, MsgEmptyInput, node.ID, nil)
		return
	}

	r.say(domain.RoleUser, resp.Text, node.ID, nil)
	r.capture(variableName(cfg.Variable, node.ID), resp.Text)
	r.follow(node.ID, "", false)
}

func (r *run) submitAI(node domain.Node, resp domain.Response) {
	cfg, err := node.InputConfig()
	if err != nil {
		r.logger.Warn("invalid input config", "node_id", node.ID, "err", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		r.say(domain.RoleSystem, MsgEmptyInput, node.ID, nil)
		return
	}

	key := variableName(cfg.Variable, node.ID)
	r.say(domain.RoleUser, resp.Text, node.ID, nil)
	r.capture(key, resp.Text)

	reply, err := r.complete(node, cfg.Provider, resp.Text)
	if err != nil {
		r.say(domain.RoleAI, fmt.Sprintf(MsgProviderFailed, err), node.ID, nil)
	} else {
		r.say(domain.RoleAI, reply, node.ID, nil)
		r.capture(key+"_reply", reply)
	}
	r.follow(node.ID, "", false)
}
