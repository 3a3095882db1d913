package vision

import "errors"

var (
	ErrUnsupported           = errors.New("camera unsupported")
	ErrInsecureContext       = errors.New("camera requires a secure context")
	ErrPermissionDenied      = errors.New("camera permission denied")
	ErrPermissionPrompt      = errors.New("camera permission dismissed")
	ErrDeviceNotFound        = errors.New("camera not found")
	ErrDeviceBusy            = errors.New("camera busy")
	ErrResolutionUnsupported = errors.New("camera resolution unsupported")
	ErrModelLoad             = errors.New("detector models failed to load")
)

var errorMessages = []struct {
	err     error
	message string
}{
	{ErrUnsupported, "当前环境不支持摄像头访问"},
	{ErrInsecureContext, "摄像头需要在 HTTPS 或 localhost 环境下使用"},
	{ErrPermissionDenied, "摄像头权限被拒绝，请在浏览器设置中允许访问摄像头"},
	{ErrPermissionPrompt, "请在弹出的提示中允许访问摄像头"},
	{ErrDeviceNotFound, "未检测到摄像头设备"},
	{ErrDeviceBusy, "摄像头正被其他应用占用"},
	{ErrResolutionUnsupported, "摄像头不支持请求的分辨率"},
	{ErrModelLoad, "视觉模型加载失败，请检查网络后重试"},
}

// Message 返回面向用户的错误提示。
func Message(err error) string {
	for _, entry := range errorMessages {
		if errors.Is(err, entry.err) {
			return entry.message
		}
	}
	return "摄像头启动失败: " + err.Error()
}
