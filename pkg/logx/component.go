// Package logx tags the messages of a github.com/cyclopcam/logs log with the component that wrote them.
package logx

import "github.com/cyclopcam/logs"

// Component forwards to a shared log, prefixing every message with "name: ".
type Component struct {
	log logs.Log
	tag string
}

// WithComponent tags log with name. If log is itself a *Component, the names nest,
// so WithComponent(WithComponent(log, "eval"), "loader") writes "eval: loader: ...".
func WithComponent(log logs.Log, name string) *Component {
	if parent, ok := log.(*Component); ok {
		return &Component{log: parent.log, tag: parent.tag + name + ": "}
	}
	return &Component{log: log, tag: name + ": "}
}

// Tag is the text that is prepended to messages
func (c *Component) Tag() string {
	return c.tag
}

// Close is a no-op. The underlying log belongs to whoever created it.
func (c *Component) Close() {}

func (c *Component) Debugf(format string, a ...any) {
	c.log.Debugf(c.tag+format, a...)
}

func (c *Component) Infof(format string, a ...any) {
	c.log.Infof(c.tag+format, a...)
}

func (c *Component) Warnf(format string, a ...any) {
	c.log.Warnf(c.tag+format, a...)
}

func (c *Component) Errorf(format string, a ...any) {
	c.log.Errorf(c.tag+format, a...)
}

func (c *Component) Criticalf(format string, a ...any) {
	c.log.Criticalf(c.tag+format, a...)
}
