package pose

// JointName identifies a body landmark in the fixed 33-point vocabulary
// emitted by the pose estimator.
type JointName string

const (
	Nose           JointName = "nose"
	LeftEyeInner   JointName = "left_eye_inner"
	LeftEye        JointName = "left_eye"
	LeftEyeOuter   JointName = "left_eye_outer"
	RightEyeInner  JointName = "right_eye_inner"
	RightEye       JointName = "right_eye"
	RightEyeOuter  JointName = "right_eye_outer"
	LeftEar        JointName = "left_ear"
	RightEar       JointName = "right_ear"
	MouthLeft      JointName = "mouth_left"
	MouthRight     JointName = "mouth_right"
	LeftShoulder   JointName = "left_shoulder"
	RightShoulder  JointName = "right_shoulder"
	LeftElbow      JointName = "left_elbow"
	RightElbow     JointName = "right_elbow"
	LeftWrist      JointName = "left_wrist"
	RightWrist     JointName = "right_wrist"
	LeftPinky      JointName = "left_pinky"
	RightPinky     JointName = "right_pinky"
	LeftIndex      JointName = "left_index"
	RightIndex     JointName = "right_index"
	LeftThumb      JointName = "left_thumb"
	RightThumb     JointName = "right_thumb"
	LeftHip        JointName = "left_hip"
	RightHip       JointName = "right_hip"
	LeftKnee       JointName = "left_knee"
	RightKnee      JointName = "right_knee"
	LeftAnkle      JointName = "left_ankle"
	RightAnkle     JointName = "right_ankle"
	LeftHeel       JointName = "left_heel"
	RightHeel      JointName = "right_heel"
	LeftFootIndex  JointName = "left_foot_index"
	RightFootIndex JointName = "right_foot_index"
)

// Vocabulary lists every landmark in estimator index order.
var Vocabulary = []JointName{
	Nose,
	LeftEyeInner, LeftEye, LeftEyeOuter,
	RightEyeInner, RightEye, RightEyeOuter,
	LeftEar, RightEar,
	MouthLeft, MouthRight,
	LeftShoulder, RightShoulder,
	LeftElbow, RightElbow,
	LeftWrist, RightWrist,
	LeftPinky, RightPinky,
	LeftIndex, RightIndex,
	LeftThumb, RightThumb,
	LeftHip, RightHip,
	LeftKnee, RightKnee,
	LeftAnkle, RightAnkle,
	LeftHeel, RightHeel,
	LeftFootIndex, RightFootIndex,
}

var vocabularySet = func() map[JointName]struct{} {
	m := make(map[JointName]struct{}, len(Vocabulary))
	for _, j := range Vocabulary {
		m[j] = struct{}{}
	}
	return m
}()

// IsKnownJoint reports whether name is part of the landmark vocabulary.
func IsKnownJoint(name JointName) bool {
	_, ok := vocabularySet[name]
	return ok
}
