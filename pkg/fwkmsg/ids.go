package fwkmsg

// ManagerID identifies one of the fixed, statically known manager tasks.
type ManagerID int

const (
	TaskInput ManagerID = iota
	TaskCamera
	TaskDisplay
	TaskVisionAlgo
	TaskAudio
	TaskVoiceAlgo
	TaskOutput
	TaskMulticore
	TaskCount // boundary: first app-defined task id, if any, starts here
)

var managerNames = [TaskCount]string{
	TaskInput:      "input",
	TaskCamera:     "camera",
	TaskDisplay:    "display",
	TaskVisionAlgo: "vision_algo",
	TaskAudio:      "audio",
	TaskVoiceAlgo:  "voice_algo",
	TaskOutput:     "output",
	TaskMulticore:  "multicore",
}

func (id ManagerID) String() string {
	if id < 0 || int(id) >= len(managerNames) {
		return "invalid"
	}
	return managerNames[id]
}

// ID identifies the kind of a Message and, through it, which Payload
// field is active. The names mirror the original firmware's message
// name table (camera_dq, camera_set, display_req, display_res,
// alg_req_frame, alg_respond_frame, alg_result_update, dispatch_overlay,
// input_recv, inputNotify, raw_msg) extended with the kinds the audio,
// voice and multicore paths need.
type ID int

const (
	Invalid ID = iota

	CameraDequeue
	CameraSet

	DisplayRequestFrame
	DisplayResponseFrame

	VAlgoRequestFrame
	VAlgoResponseFrame
	VAlgoResultUpdate

	DispatchOverlay

	InputReceive
	InputNotify
	InputAudioReceived
	InputFrameworkGetComponents
	FrameworkGetManagerInfo

	VAlgoASRInputProcess
	VAlgoASRResultUpdate
	StopVoiceCommand
	AsrToAfeFeedback
	SpeakerToAfeFeedback

	AudioDump

	VisionResultUpdate
	VisionLedPwmControl
	VisionCamExpControl
	VisionRecordControl
	VisionRequestFrame

	LpmPreEnterSleep

	Raw

	idCount
)

var idNames = [idCount]string{
	Invalid:                     "invalid",
	CameraDequeue:               "camera_dq",
	CameraSet:                   "camera_set",
	DisplayRequestFrame:         "display_req",
	DisplayResponseFrame:        "display_res",
	VAlgoRequestFrame:           "alg_req_frame",
	VAlgoResponseFrame:          "alg_respond_frame",
	VAlgoResultUpdate:           "alg_result_update",
	DispatchOverlay:             "dispatch_overlay",
	InputReceive:                "input_recv",
	InputNotify:                 "inputNotify",
	InputAudioReceived:          "input_audio_recv",
	InputFrameworkGetComponents: "fwk_get_components",
	FrameworkGetManagerInfo:     "fwk_get_manager_info",
	VAlgoASRInputProcess:        "asr_input_process",
	VAlgoASRResultUpdate:        "asr_result_update",
	StopVoiceCommand:            "stop_voice_command",
	AsrToAfeFeedback:            "asr_to_afe_feedback",
	SpeakerToAfeFeedback:        "speaker_to_afe_feedback",
	AudioDump:                   "audio_dump",
	VisionResultUpdate:          "vision_result_update",
	VisionLedPwmControl:         "vision_led_pwm_control",
	VisionCamExpControl:         "vision_cam_exp_control",
	VisionRecordControl:         "vision_record_control",
	VisionRequestFrame:          "vision_request_frame",
	LpmPreEnterSleep:            "lpm_pre_enter_sleep",
	Raw:                         "raw_msg",
}

// NameOf returns the human-readable name of a message id, or "invalid"
// for anything outside the known range.
func NameOf(id ID) string {
	if id < 0 || int(id) >= len(idNames) || idNames[id] == "" {
		return "invalid"
	}
	return idNames[id]
}
