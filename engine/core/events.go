package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01
	// Keyboard key pressed. Data is *KeyEvent.
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02
	// Keyboard key released. Data is *KeyEvent.
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03
	// Resized/resolution changed from the OS. Data is *SystemEvent.
	EVENT_CODE_RESIZED SystemEventCode = 0x08
	// The configuration file changed on disk. Data is the file path.
	EVENT_CODE_CONFIG_CHANGED SystemEventCode = 0x10
	// The shader library changed on disk. Data is the file path.
	EVENT_CODE_SHADER_CHANGED SystemEventCode = 0x11

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type KeyCode uint16

const (
	KEY_ESCAPE KeyCode = 0x1B
	KEY_SPACE  KeyCode = 0x20
	KEY_I      KeyCode = 0x49
	KEY_R      KeyCode = 0x52
)

type KeyEvent struct {
	KeyCode KeyCode
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type FnOnEvent func(context EventContext)

type eventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]FnOnEvent
	queue      chan EventContext
}

var eventState *eventSystem

const eventQueueSize = 256

func EventSystemInitialize() bool {
	if eventState != nil {
		return true
	}
	eventState = &eventSystem{
		registered: make(map[SystemEventCode][]FnOnEvent),
		queue:      make(chan EventContext, eventQueueSize),
	}
	return true
}

func EventSystemShutdown() error {
	if eventState == nil {
		return nil
	}
	eventState.mu.Lock()
	eventState.registered = make(map[SystemEventCode][]FnOnEvent)
	eventState.mu.Unlock()
	eventState = nil
	return nil
}

// EventRegister adds a listener for the given code.
func EventRegister(code SystemEventCode, onEvent FnOnEvent) bool {
	if eventState == nil || code > MAX_EVENT_CODE {
		return false
	}
	eventState.mu.Lock()
	defer eventState.mu.Unlock()
	eventState.registered[code] = append(eventState.registered[code], onEvent)
	return true
}

// EventFire queues an event. Listeners run on the goroutine that drains the
// queue through EventDispatch. Returns false when the queue is full.
func EventFire(context EventContext) bool {
	if eventState == nil {
		return false
	}
	select {
	case eventState.queue <- context:
		return true
	default:
		LogWarn("event queue full, dropping event 0x%02x", int(context.Type))
		return false
	}
}

// EventDispatch runs the listeners of every queued event. The engine calls it
// once per tick from the render goroutine so listeners never race the frame loop.
func EventDispatch() int {
	if eventState == nil {
		return 0
	}
	n := 0
	for {
		select {
		case ctx := <-eventState.queue:
			eventState.mu.RLock()
			listeners := append([]FnOnEvent(nil), eventState.registered[ctx.Type]...)
			eventState.mu.RUnlock()
			for _, fn := range listeners {
				fn(ctx)
			}
			n++
		default:
			return n
		}
	}
}
