package collection

// Notifier 向用户展示提示
type Notifier interface {
	Notify(message string)
}

// NotifierFunc 函数适配器
type NotifierFunc func(message string)

// Notify 实现 Notifier
func (f NotifierFunc) Notify(message string) {
	f(message)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string) {}
