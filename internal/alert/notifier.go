// 本文件用于超窗通知的组装与发送
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"manifest-watch/internal/dingtalk"
	"manifest-watch/internal/email"
	"manifest-watch/internal/metrics"
	"manifest-watch/internal/models"
)

// MissedNotice 表示一次班次超窗事件的通知负载
type MissedNotice struct {
	Date     string
	Time     string
	Carriers []string
	At       time.Time
}

// Notifier 表示超窗通知发送器
type Notifier interface {
	Notify(ctx context.Context, notice MissedNotice) error
}

// NotifierSet 组合钉钉与邮件通知
type NotifierSet struct {
	DingTalk *dingtalk.Robot
	Email    *email.Sender
}

// Notify 发送超窗通知 单一渠道失败不拦截其余渠道
func (n *NotifierSet) Notify(ctx context.Context, notice MissedNotice) error {
	if n == nil {
		return nil
	}
	collector := metrics.Global()
	var firstErr error
	if n.DingTalk != nil {
		if err := n.DingTalk.SendMarkdown(ctx, buildTitle(notice), buildMarkdown(notice)); err != nil {
			collector.ObserveNotify("dingtalk", "failure")
			firstErr = err
		} else {
			collector.ObserveNotify("dingtalk", "success")
		}
	}
	if n.Email != nil {
		err := n.Email.SendMessage(ctx, buildSubject(notice), buildEmailBody(notice))
		switch {
		case err == nil:
			collector.ObserveNotify("email", "success")
		case email.IsQuitError(err):
			// QUIT 失败时邮件已经提交 不计发送失败
			collector.ObserveNotify("email", "success")
		default:
			collector.ObserveNotify("email", "failure")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func buildTitle(notice MissedNotice) string {
	return fmt.Sprintf("截单超时 %s", notice.Time)
}

func buildSubject(notice MissedNotice) string {
	return fmt.Sprintf("截单超时提醒 [%s %s]", notice.Date, notice.Time)
}

// buildMarkdown 生成钉钉 markdown 正文
func buildMarkdown(notice MissedNotice) string {
	carriers := strings.Join(notice.Carriers, "、")
	if carriers == "" {
		carriers = "无"
	}
	return fmt.Sprintf("### 截单超时\n\n- 日期: %s\n- 班次: %s\n- 未确认承运商: %s\n- 发现时间: %s",
		notice.Date,
		notice.Time,
		carriers,
		models.FormatStamp(notice.At),
	)
}

func buildEmailBody(notice MissedNotice) string {
	carriers := strings.Join(notice.Carriers, "、")
	if carriers == "" {
		carriers = "无"
	}
	return fmt.Sprintf("日期: %s\n班次: %s\n未确认承运商: %s\n发现时间: %s\n",
		notice.Date,
		notice.Time,
		carriers,
		models.FormatStamp(notice.At),
	)
}
