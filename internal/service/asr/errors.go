package asr

import "fmt"

var errorMessages = map[string]string{
	"no-speech":              "没有检测到语音，请再说一遍",
	"aborted":                "语音识别已中止",
	"audio-capture":          "无法访问麦克风，请检查设备连接",
	"network":                "网络错误，语音识别服务暂时不可用",
	"not-allowed":            "麦克风权限被拒绝，请在浏览器设置中允许访问麦克风",
	"service-not-allowed":    "语音识别服务不可用",
	"bad-grammar":            "语音识别语法配置错误",
	"language-not-supported": "不支持当前识别语言",
}

// ErrorMessage 把识别错误码翻译成面向用户的提示。
func ErrorMessage(code string) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("语音识别错误: %s", code)
}

// RecognitionError 是识别引擎上报的错误。
type RecognitionError struct {
	Code    string
	Message string
}

func (e *RecognitionError) Error() string {
	return e.Message
}
