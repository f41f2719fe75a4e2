package homekit

// ServiceKind identifies an accessory-protocol service type.
type ServiceKind string

// Service kinds produced by the capability resolver.
const (
	ServiceSwitch                      ServiceKind = "Switch"
	ServiceLightbulb                   ServiceKind = "Lightbulb"
	ServiceOutlet                      ServiceKind = "Outlet"
	ServiceWindowCovering              ServiceKind = "WindowCovering"
	ServiceGarageDoorOpener            ServiceKind = "GarageDoorOpener"
	ServiceLockMechanism               ServiceKind = "LockMechanism"
	ServiceTemperatureSensor           ServiceKind = "TemperatureSensor"
	ServiceHumiditySensor              ServiceKind = "HumiditySensor"
	ServiceLightSensor                 ServiceKind = "LightSensor"
	ServiceMotionSensor                ServiceKind = "MotionSensor"
	ServiceContactSensor               ServiceKind = "ContactSensor"
	ServiceLeakSensor                  ServiceKind = "LeakSensor"
	ServiceSmokeSensor                 ServiceKind = "SmokeSensor"
	ServiceCarbonMonoxideSensor        ServiceKind = "CarbonMonoxideSensor"
	ServiceThermostat                  ServiceKind = "Thermostat"
	ServiceSecuritySystem              ServiceKind = "SecuritySystem"
	ServiceStatelessProgrammableSwitch ServiceKind = "StatelessProgrammableSwitch"
	ServiceDoorbell                    ServiceKind = "Doorbell"
	ServiceValve                       ServiceKind = "Valve"
)

// CharKind identifies a characteristic type.
type CharKind string

// Characteristic kinds understood by the transform tables.
const (
	CharName                       CharKind = "Name"
	CharOn                         CharKind = "On"
	CharBrightness                 CharKind = "Brightness"
	CharHue                        CharKind = "Hue"
	CharSaturation                 CharKind = "Saturation"
	CharOutletInUse                CharKind = "OutletInUse"
	CharCurrentPosition            CharKind = "CurrentPosition"
	CharTargetPosition             CharKind = "TargetPosition"
	CharPositionState              CharKind = "PositionState"
	CharCurrentHorizontalTilt      CharKind = "CurrentHorizontalTiltAngle"
	CharTargetHorizontalTilt       CharKind = "TargetHorizontalTiltAngle"
	CharCurrentDoorState           CharKind = "CurrentDoorState"
	CharTargetDoorState            CharKind = "TargetDoorState"
	CharObstructionDetected        CharKind = "ObstructionDetected"
	CharLockCurrentState           CharKind = "LockCurrentState"
	CharLockTargetState            CharKind = "LockTargetState"
	CharCurrentTemperature         CharKind = "CurrentTemperature"
	CharTargetTemperature          CharKind = "TargetTemperature"
	CharCurrentHeatingCoolingState CharKind = "CurrentHeatingCoolingState"
	CharTargetHeatingCoolingState  CharKind = "TargetHeatingCoolingState"
	CharTemperatureDisplayUnits    CharKind = "TemperatureDisplayUnits"
	CharCurrentRelativeHumidity    CharKind = "CurrentRelativeHumidity"
	CharCurrentAmbientLightLevel   CharKind = "CurrentAmbientLightLevel"
	CharMotionDetected             CharKind = "MotionDetected"
	CharContactSensorState         CharKind = "ContactSensorState"
	CharLeakDetected               CharKind = "LeakDetected"
	CharSmokeDetected              CharKind = "SmokeDetected"
	CharCarbonMonoxideDetected     CharKind = "CarbonMonoxideDetected"
	CharSecuritySystemCurrentState CharKind = "SecuritySystemCurrentState"
	CharSecuritySystemTargetState  CharKind = "SecuritySystemTargetState"
	CharProgrammableSwitchEvent    CharKind = "ProgrammableSwitchEvent"
	CharServiceLabelIndex          CharKind = "ServiceLabelIndex"
	CharStatusLowBattery           CharKind = "StatusLowBattery"
	CharActive                     CharKind = "Active"
	CharInUse                      CharKind = "InUse"
	CharValveType                  CharKind = "ValveType"
)

// Enumerated characteristic values.
const (
	PositionDecreasing = 0
	PositionIncreasing = 1
	PositionStopped    = 2

	DoorOpen    = 0
	DoorClosed  = 1
	DoorOpening = 2
	DoorClosing = 3
	DoorStopped = 4

	LockUnsecured = 0
	LockSecured   = 1
	LockJammed    = 2
	LockUnknown   = 3

	ModeOff  = 0
	ModeHeat = 1
	ModeCool = 2
	ModeAuto = 3

	UnitsCelsius    = 0
	UnitsFahrenheit = 1

	SecurityStayArm        = 0
	SecurityAwayArm        = 1
	SecurityNightArm       = 2
	SecurityDisarmed       = 3
	SecurityAlarmTriggered = 4

	SinglePress = 0
	DoublePress = 1
	LongPress   = 2

	ContactDetected    = 0
	ContactNotDetected = 1

	BatteryNormal = 0
	BatteryLow    = 1
)

// Format is the wire type of a characteristic value.
type Format string

// Value formats.
const (
	FormatBool   Format = "bool"
	FormatUInt8  Format = "uint8"
	FormatInt    Format = "int"
	FormatFloat  Format = "float"
	FormatString Format = "string"
)

// Meta describes the static shape of a characteristic kind.
type Meta struct {
	Format   Format
	Min      float64
	Max      float64
	Step     float64
	Default  any
	Writable bool
}

var metas = map[CharKind]Meta{
	CharName:                       {Format: FormatString, Default: ""},
	CharOn:                         {Format: FormatBool, Default: false, Writable: true},
	CharBrightness:                 {Format: FormatInt, Min: 0, Max: 100, Step: 1, Default: 0, Writable: true},
	CharHue:                        {Format: FormatFloat, Min: 0, Max: 360, Step: 1, Default: 0.0, Writable: true},
	CharSaturation:                 {Format: FormatFloat, Min: 0, Max: 100, Step: 1, Default: 0.0, Writable: true},
	CharOutletInUse:                {Format: FormatBool, Default: false},
	CharCurrentPosition:            {Format: FormatUInt8, Min: 0, Max: 100, Step: 1, Default: 0},
	CharTargetPosition:             {Format: FormatUInt8, Min: 0, Max: 100, Step: 1, Default: 0, Writable: true},
	CharPositionState:              {Format: FormatUInt8, Min: 0, Max: 2, Step: 1, Default: PositionStopped},
	CharCurrentHorizontalTilt:      {Format: FormatInt, Min: -90, Max: 90, Step: 1, Default: 0},
	CharTargetHorizontalTilt:       {Format: FormatInt, Min: -90, Max: 90, Step: 1, Default: 0, Writable: true},
	CharCurrentDoorState:           {Format: FormatUInt8, Min: 0, Max: 4, Step: 1, Default: DoorClosed},
	CharTargetDoorState:            {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: DoorClosed, Writable: true},
	CharObstructionDetected:        {Format: FormatBool, Default: false},
	CharLockCurrentState:           {Format: FormatUInt8, Min: 0, Max: 3, Step: 1, Default: LockUnknown},
	CharLockTargetState:            {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: LockSecured, Writable: true},
	CharCurrentTemperature:         {Format: FormatFloat, Min: -100, Max: 100, Step: 0.1, Default: 0.0},
	CharTargetTemperature:          {Format: FormatFloat, Min: 10, Max: 38, Step: 0.5, Default: 21.0, Writable: true},
	CharCurrentHeatingCoolingState: {Format: FormatUInt8, Min: 0, Max: 2, Step: 1, Default: ModeOff},
	CharTargetHeatingCoolingState:  {Format: FormatUInt8, Min: 0, Max: 3, Step: 1, Default: ModeOff, Writable: true},
	CharTemperatureDisplayUnits:    {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: UnitsCelsius},
	CharCurrentRelativeHumidity:    {Format: FormatFloat, Min: 0, Max: 100, Step: 1, Default: 0.0},
	CharCurrentAmbientLightLevel:   {Format: FormatFloat, Min: 0.0001, Max: 100000, Step: 0, Default: 0.0001},
	CharMotionDetected:             {Format: FormatBool, Default: false},
	CharContactSensorState:         {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: ContactDetected},
	CharLeakDetected:               {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: 0},
	CharSmokeDetected:              {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: 0},
	CharCarbonMonoxideDetected:     {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: 0},
	CharSecuritySystemCurrentState: {Format: FormatUInt8, Min: 0, Max: 4, Step: 1, Default: SecurityDisarmed},
	CharSecuritySystemTargetState:  {Format: FormatUInt8, Min: 0, Max: 3, Step: 1, Default: SecurityDisarmed, Writable: true},
	CharProgrammableSwitchEvent:    {Format: FormatUInt8, Min: 0, Max: 2, Step: 1, Default: nil},
	CharServiceLabelIndex:          {Format: FormatUInt8, Min: 1, Max: 255, Step: 1, Default: 1},
	CharStatusLowBattery:           {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: BatteryNormal},
	CharActive:                     {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: 0, Writable: true},
	CharInUse:                      {Format: FormatUInt8, Min: 0, Max: 1, Step: 1, Default: 0},
	CharValveType:                  {Format: FormatUInt8, Min: 0, Max: 3, Step: 1, Default: 0},
}

// MetaFor returns the static shape of kind. Unknown kinds report a read-only
// string characteristic.
func MetaFor(kind CharKind) Meta {
	if m, ok := metas[kind]; ok {
		return m
	}
	return Meta{Format: FormatString, Default: ""}
}

// Known reports whether kind has registered metadata.
func Known(kind CharKind) bool {
	_, ok := metas[kind]
	return ok
}
