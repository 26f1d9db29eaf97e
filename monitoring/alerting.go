// Package monitoring provides alerting capabilities for the status monitor backend
package monitoring

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/sirupsen/logrus"
)

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertType represents the type of alert
type AlertType string

const (
	AlertTypeSourceFailing  AlertType = "source_failing"
	AlertTypeSlowSubscriber AlertType = "slow_subscriber"
	AlertTypeMonitorDown    AlertType = "monitor_down"
)

// Alert represents an alert
type Alert struct {
	ID          string                 `json:"id"`
	Type        AlertType              `json:"type"`
	Severity    AlertSeverity          `json:"severity"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Timestamp   time.Time              `json:"timestamp"`
	Labels      map[string]string      `json:"labels"`
	Annotations map[string]interface{} `json:"annotations"`
	Resolved    bool                   `json:"resolved"`
	ResolvedAt  *time.Time             `json:"resolved_at,omitempty"`
}

// AlertManager manages alerts and notifications
type AlertManager struct {
	alerts    map[string]*Alert
	mutex     sync.RWMutex
	logger    *logrus.Logger
	rules     []AlertRule
	notifiers []Notifier
	ctx       context.Context
	cancel    context.CancelFunc
}

// AlertRule defines a rule for generating alerts
type AlertRule struct {
	Name        string
	Type        AlertType
	Severity    AlertSeverity
	Condition   func() bool
	Title       string
	Description string
	Labels      map[string]string
	Enabled     bool
	Interval    time.Duration
}

// Notifier interface for sending alert notifications
type Notifier interface {
	Send(alert *Alert) error
	Name() string
}

// LogNotifier sends alerts to the log
type LogNotifier struct {
	logger *logrus.Logger
}

func (n *LogNotifier) Name() string {
	return "log"
}

func (n *LogNotifier) Send(alert *Alert) error {
	level := logrus.InfoLevel
	switch alert.Severity {
	case SeverityHigh:
		level = logrus.WarnLevel
	case SeverityCritical:
		level = logrus.ErrorLevel
	}

	n.logger.WithFields(logrus.Fields{
		"alert_id":    alert.ID,
		"alert_type":  alert.Type,
		"severity":    alert.Severity,
		"labels":      alert.Labels,
		"annotations": alert.Annotations,
	}).Log(level, fmt.Sprintf("ALERT: %s - %s", alert.Title, alert.Description))

	return nil
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// MailgunNotifier sends alerts by email through the Mailgun API
type MailgunNotifier struct {
	mg        *mailgun.MailgunImpl
	sender    string
	recipient string
}

// NewMailgunNotifier creates a notifier that emails alerts via Mailgun
func NewMailgunNotifier(domain, apiKey, sender, recipient string) *MailgunNotifier {
	return &MailgunNotifier{
		mg:        mailgun.NewMailgun(domain, apiKey),
		sender:    sender,
		recipient: recipient,
	}
}

func (n *MailgunNotifier) Name() string {
	return "mailgun"
}

func (n *MailgunNotifier) Send(alert *Alert) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)

	var body strings.Builder
	fmt.Fprintf(&body, "%s\n\n", alert.Description)
	fmt.Fprintf(&body, "Type: %s\n", alert.Type)
	fmt.Fprintf(&body, "Severity: %s\n", alert.Severity)
	fmt.Fprintf(&body, "Time: %s\n", alert.Timestamp.Format(time.RFC3339))
	for k, v := range alert.Labels {
		fmt.Fprintf(&body, "%s: %s\n", k, v)
	}

	message := n.mg.NewMessage(n.sender, subject, body.String(), n.recipient)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := n.mg.Send(ctx, message)
	return err
}

// NewAlertManager creates a new alert manager
func NewAlertManager(logger *logrus.Logger) *AlertManager {
	ctx, cancel := context.WithCancel(context.Background())

	am := &AlertManager{
		alerts:    make(map[string]*Alert),
		logger:    logger,
		rules:     getDefaultAlertRules(),
		notifiers: []Notifier{NewLogNotifier(logger)},
		ctx:       ctx,
		cancel:    cancel,
	}

	// Start alert evaluation loop
	go am.evaluateRules()

	return am
}

// getDefaultAlertRules returns default alert rules for the status monitor backend
func getDefaultAlertRules() []AlertRule {
	return []AlertRule{
		{
			Name:        "Sources Failing",
			Type:        AlertTypeSourceFailing,
			Severity:    SeverityHigh,
			Condition:   func() bool { return false }, // Wired to live pool health at startup
			Title:       "One or more status sources are failing",
			Description: "A monitored source has crossed the consecutive failure threshold",
			Labels:      map[string]string{"service": "status-monitor-backend"},
			Enabled:     true,
			Interval:    time.Minute * 2,
		},
		{
			Name:        "Slow Subscribers",
			Type:        AlertTypeSlowSubscriber,
			Severity:    SeverityMedium,
			Condition:   func() bool { return false }, // Wired to live bus counters at startup
			Title:       "Events are being dropped from subscriber queues",
			Description: "One or more WebSocket subscribers cannot keep up with the event stream",
			Labels:      map[string]string{"service": "status-monitor-backend"},
			Enabled:     true,
			Interval:    time.Minute * 5,
		},
		{
			Name:        "All Sources Down",
			Type:        AlertTypeMonitorDown,
			Severity:    SeverityCritical,
			Condition:   func() bool { return false }, // Wired to live pool health at startup
			Title:       "Every monitored source is failing",
			Description: "No source is answering; the upstream network path is suspect",
			Labels:      map[string]string{"service": "status-monitor-backend"},
			Enabled:     true,
			Interval:    time.Minute,
		},
	}
}

// evaluateRules runs the alert evaluation loop
func (am *AlertManager) evaluateRules() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-am.ctx.Done():
			return
		case <-ticker.C:
			am.evaluateAllRules()
		}
	}
}

// evaluateAllRules evaluates all enabled alert rules. A rule whose condition
// has gone false resolves any active alert of its type, so the next outage
// alerts again.
func (am *AlertManager) evaluateAllRules() {
	am.mutex.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mutex.RUnlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.Condition() {
			am.triggerAlert(rule)
		} else {
			am.resolveByType(rule.Type)
		}
	}
}

// triggerAlert creates and sends an alert
func (am *AlertManager) triggerAlert(rule AlertRule) {
	alertID := fmt.Sprintf("%s-%d", rule.Type, time.Now().Unix())

	alert := &Alert{
		ID:          alertID,
		Type:        rule.Type,
		Severity:    rule.Severity,
		Title:       rule.Title,
		Description: rule.Description,
		Timestamp:   time.Now(),
		Labels:      rule.Labels,
		Annotations: make(map[string]interface{}),
		Resolved:    false,
	}

	am.mutex.Lock()
	// Check if we already have an active alert of this type
	for _, existingAlert := range am.alerts {
		if existingAlert.Type == rule.Type && !existingAlert.Resolved {
			am.mutex.Unlock()
			return // Alert already active
		}
	}
	am.alerts[alertID] = alert
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

// resolveByType resolves every active alert of the given type
func (am *AlertManager) resolveByType(alertType AlertType) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	for id, alert := range am.alerts {
		if alert.Type == alertType && !alert.Resolved {
			now := time.Now()
			alert.Resolved = true
			alert.ResolvedAt = &now

			am.logger.WithFields(logrus.Fields{
				"alert_id": id,
				"type":     alert.Type,
			}).Info("Alert resolved")
		}
	}
}

// sendNotifications sends the alert to all notifiers
func (am *AlertManager) sendNotifications(alert *Alert) {
	for _, notifier := range am.notifiers {
		if err := notifier.Send(alert); err != nil {
			am.logger.WithError(err).WithField("notifier", notifier.Name()).Error("Failed to send alert notification")
		}
	}
}

// TriggerManualAlert manually triggers an alert
func (am *AlertManager) TriggerManualAlert(alertType AlertType, severity AlertSeverity, title, description string, labels map[string]string) {
	alertID := fmt.Sprintf("%s-%d", alertType, time.Now().Unix())

	alert := &Alert{
		ID:          alertID,
		Type:        alertType,
		Severity:    severity,
		Title:       title,
		Description: description,
		Timestamp:   time.Now(),
		Labels:      labels,
		Annotations: make(map[string]interface{}),
		Resolved:    false,
	}

	am.mutex.Lock()
	am.alerts[alertID] = alert
	am.mutex.Unlock()

	am.sendNotifications(alert)
}

// ResolveAlert resolves an alert
func (am *AlertManager) ResolveAlert(alertID string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	if alert, exists := am.alerts[alertID]; exists {
		now := time.Now()
		alert.Resolved = true
		alert.ResolvedAt = &now

		am.logger.WithFields(logrus.Fields{
			"alert_id": alertID,
			"type":     alert.Type,
		}).Info("Alert resolved")
	}
}

// GetActiveAlerts returns all active (unresolved) alerts
func (am *AlertManager) GetActiveAlerts() []*Alert {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	var activeAlerts []*Alert
	for _, alert := range am.alerts {
		if !alert.Resolved {
			activeAlerts = append(activeAlerts, alert)
		}
	}

	return activeAlerts
}

// AddNotifier adds a new notifier
func (am *AlertManager) AddNotifier(notifier Notifier) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	am.notifiers = append(am.notifiers, notifier)
}

// UpdateRuleCondition updates the condition function for a rule
func (am *AlertManager) UpdateRuleCondition(ruleName string, condition func() bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	for i, rule := range am.rules {
		if rule.Name == ruleName {
			am.rules[i].Condition = condition
			break
		}
	}
}

// Stop stops the alert manager
func (am *AlertManager) Stop() {
	am.cancel()
}
